package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (o *memObject) Close() error {
	o.closed = true
	return o.closeErr
}

func fakeGCS(obj *memObject, seen *[]string) *GCS {
	return &GCS{
		bucket: "gastos-imports",
		open: func(_ context.Context, bucket, object string) io.WriteCloser {
			*seen = append(*seen, bucket+"/"+object)
			return obj
		},
	}
}

func TestUpload_ObjectName(t *testing.T) {
	received := time.Date(2024, 3, 14, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	u := Upload{Owner: "maria", BatchID: "b1", Received: received}
	assert.Equal(t, "imports/maria/2024-03-14/b1.csv", u.ObjectName())

	u.Owner = " "
	assert.Equal(t, "imports/unknown/2024-03-14/b1.csv", u.ObjectName())
}

func TestGCS_Archive(t *testing.T) {
	obj := &memObject{}
	var seen []string
	g := fakeGCS(obj, &seen)

	uri, err := g.Archive(context.Background(), Upload{
		Owner:    "francis",
		BatchID:  "abc",
		Received: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Body:     []byte("Fecha,Importe,Descripción\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://gastos-imports/imports/francis/2024-01-02/abc.csv", uri)
	assert.Equal(t, []string{"gastos-imports/imports/francis/2024-01-02/abc.csv"}, seen)
	assert.Equal(t, "Fecha,Importe,Descripción\n", obj.String())
	assert.True(t, obj.closed)
}

func TestGCS_ArchiveFinalizeError(t *testing.T) {
	obj := &memObject{closeErr: errors.New("permission denied")}
	var seen []string
	g := fakeGCS(obj, &seen)

	_, err := g.Archive(context.Background(), Upload{Owner: "maria", BatchID: "x", Received: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize upload")
}

func TestGCS_CloseWithoutClient(t *testing.T) {
	assert.NoError(t, (&GCS{}).Close())
}
