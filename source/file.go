package source

import (
	"context"
	"fmt"
	"os"

	"procurement-insight/decision/order"
	"procurement-insight/pkg/errors"
)

// FileSource reads an order export from disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) ListOrders(ctx context.Context) ([]order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.NewSourceError(s.Path, err)
	}
	defer f.Close()

	orders, err := Decode(f)
	if err != nil {
		return nil, errors.NewSourceError(s.Path, err)
	}
	return orders, nil
}

func (s *FileSource) String() string {
	return fmt.Sprintf("file:%s", s.Path)
}
