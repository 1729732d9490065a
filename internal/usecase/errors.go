package usecase

import (
	"errors"

	"github.com/semmidev/backdrop/internal/domain"
)

// wrapKind tags err with kind unless an adapter already did.
func wrapKind(kind error, op, path string, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return domain.NewOpError(kind, op, path, err)
}
