package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/library"
)

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	input := `title,author,year,copies,isbn,categories
Ficciones,Jorge Luis Borges,1944,3,978-0802130303,Cuentos;Clasicos
El Aleph,Jorge Luis Borges,1949,2,,cuentos
Rayuela,Julio Cortazar,unknown,1,,
Bestiario,Julio Cortazar,1951
Final del juego,Julio Cortazar,1956,-1,,
`
	var out bytes.Buffer
	imported, failed, err := importCSV(ctx, mgr, strings.NewReader(input), &out)

	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 3, failed)
	assert.Contains(t, out.String(), "Ficciones by Jorge Luis Borges... SUCCESS")

	authors, err := mgr.ListAuthors(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, "Jorge Luis Borges")

	cats, err := mgr.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2, "category names match case-insensitively")

	page, err := mgr.SearchBooks(ctx, "Aleph", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, 2, page.Books[0].AvailableCopies)
}

func TestImportCSV_BadHeader(t *testing.T) {
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	_, _, err = importCSV(context.Background(), mgr,
		strings.NewReader("name,writer,year,copies,isbn,categories\n"), &bytes.Buffer{})
	assert.Error(t, err)
}
