package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"45.20", "45.2", true},
		{"45,20", "45.2", true},
		{" 2.50 ", "2.5", true},
		{"-12.5", "12.5", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"12,50 €", "12.5", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,2,3", "", false},
		{"NaN", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestParseAmountCommaEqualsDot(t *testing.T) {
	for _, pair := range [][2]string{{"45,20", "45.20"}, {"0,01", "0.01"}, {"1000,5", "1000.5"}} {
		a, errA := ParseAmount(pair[0])
		b, errB := ParseAmount(pair[1])
		if errA != nil || errB != nil {
			t.Fatalf("unexpected errors: %v %v", errA, errB)
		}
		if !a.Equal(b) {
			t.Fatalf("%q=%s differs from %q=%s", pair[0], a, pair[1], b)
		}
	}
}

func TestMoneyArithmeticIsExact(t *testing.T) {
	sum := Zero
	for i := 0; i < 10; i++ {
		sum = sum.Add(MustMoney("0.1"))
	}
	if !sum.Equal(MustMoney("1")) {
		t.Fatalf("expected exact 1, got %s", sum)
	}
	if got := MustMoney("160").Half(); !got.Equal(MustMoney("80")) {
		t.Fatalf("half of 160 = %s", got)
	}
	if got := MustMoney("0.05").Half().StringFixed(); got != "0.03" {
		t.Fatalf("display rounding = %s", got)
	}
}

func TestMoneyDisplay(t *testing.T) {
	cases := map[string]string{
		"0":       "0,00 €",
		"45.2":    "45,20 €",
		"1234.5":  "1.234,50 €",
		"1000000": "1.000.000,00 €",
	}
	for in, want := range cases {
		if got := MustMoney(in).Display(); got != want {
			t.Errorf("Display(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := MustMoney("45.20").MarshalJSON()
	if err != nil || string(b) != "45.2" {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	var m Money
	if err := m.UnmarshalJSON([]byte(`"12,5"`)); err == nil {
		t.Fatalf("expected error for comma string in JSON")
	}
	if err := m.UnmarshalJSON([]byte(`12.5`)); err != nil || !m.Equal(MustMoney("12.5")) {
		t.Fatalf("unmarshal = %s, %v", m, err)
	}
}
