package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/ingest"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{
			ID: "1", UserID: "maria", Date: core.NewDate(2025, time.August, 9),
			Amount: core.MustMoney("45.20"), Category: "Comer fuera",
			Description: `Cena "La Tasca", con amigos`, Shared: true,
		},
		{
			ID: "2", UserID: "francis", Date: core.NewDate(2025, time.August, 2),
			Amount: core.MustMoney("0.333"), Category: "Sueldo Francis",
			Description: "Nómina", Shared: false,
		},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "gastos-2025-08.csv", FileName(core.Period{Year: 2025, Month: time.August}))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), Options{}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Fecha,Importe,Categoría,Descripción,Compartido", lines[0])
	assert.Equal(t, `2025-08-09,45.2,Comer fuera,"Cena ""La Tasca"", con amigos",Sí`, lines[1])
	assert.Equal(t, `2025-08-02,0.333,Sueldo Francis,"Nómina",No`, lines[2])
}

func TestWriteIncludeUser(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample()[1:], Options{IncludeUser: true}))
	assert.Equal(t,
		"Fecha,Usuario,Importe,Categoría,Descripción,Compartido\r\n2025-08-02,francis,0.333,Sueldo Francis,\"Nómina\",No\r\n",
		buf.String())
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, Options{}))
	assert.Equal(t, "Fecha,Importe,Categoría,Descripción,Compartido\r\n", buf.String())
}

func TestRoundTripThroughImporter(t *testing.T) {
	for _, opts := range []Options{{}, {IncludeUser: true}} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sample(), opts))

		batch, err := ingest.Parse(context.Background(), &buf, ingest.Options{SessionUser: "maria"})
		require.NoError(t, err)
		require.Empty(t, batch.Errors)
		require.Len(t, batch.Pending, 2)

		for i, want := range sample() {
			got := batch.Pending[i]
			assert.Equal(t, want.Date.String(), got.Date.String())
			assert.True(t, want.Amount.Equal(got.Amount), "amount %s vs %s", want.Amount, got.Amount)
			assert.Equal(t, want.Category, got.Category)
			assert.Equal(t, want.Description, got.Description)
			assert.Equal(t, want.Shared, got.Shared)
			if opts.IncludeUser {
				assert.Equal(t, want.UserID, got.UserID)
			}
		}
	}
}
