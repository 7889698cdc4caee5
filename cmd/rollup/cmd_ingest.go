package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/rollup-backend/internal/app"
)

func newIngestCmd() *cobra.Command {
	var (
		collection string
		replace    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load raw documents from a JSON array or NDJSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection == "" {
				return fmt.Errorf("--collection is required")
			}
			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			docs, err := decodeDocuments(r)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				ing := a.Repos.Ingester
				if ing == nil {
					return fmt.Errorf("source driver %q does not accept documents", a.Cfg.SourceDriver)
				}
				if replace {
					if err := ing.Reset(cmd.Context(), collection); err != nil {
						return err
					}
				}
				n, err := ing.Ingest(cmd.Context(), collection, docs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents into %s\n", n, collection)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Target collection (required)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Drop the collection's existing documents first")
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// decodeDocuments accepts either one JSON array of objects or a stream of
// objects (NDJSON).
func decodeDocuments(r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(br)
	if first == '[' {
		var docs []map[string]any
		if err := dec.Decode(&docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	var docs []map[string]any
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, doc)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
