// Command import_books loads a catalog from a CSV file with the header
//
//	title,author,year,copies,isbn,categories
//
// where categories is a ';' separated list. Authors and categories are
// created on first use.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-lending/config"
	"library-lending/library"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		dsn   string
		reset bool
	)
	cmd := &cobra.Command{
		Use:          "import_books FILE.csv",
		Short:        "Import books from a CSV file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.DatabaseURL = dsn
			}
			out := cmd.OutOrStdout()

			if reset {
				if cfg.DBDriver != library.DriverSQLite {
					return errors.New("--reset only works with sqlite")
				}
				fmt.Fprintln(out, "Cleaning up existing database files...")
				for _, suffix := range []string{"", "-shm", "-wal"} {
					if err := os.Remove(cfg.DatabaseURL + suffix); err != nil && !os.IsNotExist(err) {
						fmt.Fprintf(out, "Warning: could not remove %s: %v\n", cfg.DatabaseURL+suffix, err)
					}
				}
			}

			db, err := library.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			mgr := library.NewManager(db)
			defer mgr.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fmt.Fprintf(out, "Importing books from %s...\n", args[0])
			imported, failed, err := importCSV(cmd.Context(), mgr, f, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nImport complete!\nSuccessfully imported: %d books\nErrors: %d\n", imported, failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "override DATABASE_URL")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the sqlite database before importing")
	return cmd
}

var header = []string{"title", "author", "year", "copies", "isbn", "categories"}

// importCSV creates one book per record. A bad record is reported and
// skipped; only an unreadable file aborts the run.
func importCSV(ctx context.Context, mgr *library.LibraryManager, r io.Reader, out io.Writer) (imported, failed int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(first[i])) != col {
			return 0, 0, fmt.Errorf("unexpected header %v, want %v", first, header)
		}
	}

	cats, err := categoryIndex(ctx, mgr)
	if err != nil {
		return 0, 0, err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
				fmt.Fprintf(out, "line %d: ERROR - %v\n", line, err)
				failed++
				continue
			}
			return imported, failed, err
		}

		b, err := importRecord(ctx, mgr, cats, rec)
		if err != nil {
			fmt.Fprintf(out, "line %d: %s... ERROR - %v\n", line, rec[0], err)
			failed++
			continue
		}
		fmt.Fprintf(out, "line %d: %s by %s... SUCCESS (ID: %d)\n", line, b.Title, b.AuthorName, b.ID)
		imported++
	}
	return imported, failed, nil
}

func categoryIndex(ctx context.Context, mgr *library.LibraryManager) (map[string]int64, error) {
	list, err := mgr.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int64, len(list))
	for _, c := range list {
		idx[strings.ToLower(c.Name)] = c.ID
	}
	return idx, nil
}

func importRecord(ctx context.Context, mgr *library.LibraryManager, cats map[string]int64, rec []string) (*library.Book, error) {
	year, err := strconv.Atoi(rec[2])
	if err != nil {
		return nil, fmt.Errorf("year %q: %w", rec[2], library.ErrInvalidArgument)
	}
	copies, err := strconv.Atoi(rec[3])
	if err != nil {
		return nil, fmt.Errorf("copies %q: %w", rec[3], library.ErrInvalidArgument)
	}

	author, err := mgr.EnsureAuthor(ctx, rec[1])
	if err != nil {
		return nil, err
	}

	in := library.BookInput{Title: rec[0], AuthorID: author.ID, PublicationYear: year, TotalCopies: copies}
	if isbn := strings.TrimSpace(rec[4]); isbn != "" {
		in.ISBN = &isbn
	}
	for _, name := range strings.Split(rec[5], ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := cats[strings.ToLower(name)]
		if !ok {
			c, err := mgr.CreateCategory(ctx, library.Category{Name: name})
			if err != nil {
				return nil, err
			}
			id = c.ID
			cats[strings.ToLower(name)] = id
		}
		in.CategoryIDs = append(in.CategoryIDs, id)
	}

	b, err := mgr.CreateBook(ctx, in)
	if err != nil {
		return nil, err
	}
	b.AuthorName = author.Name
	return b, nil
}
