package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// Normalizer decodes the members of one run and folds them into a TableSet.
type Normalizer struct {
	decoder Decoder
}

// NewNormalizer creates a Normalizer using decoder for every member.
func NewNormalizer(decoder Decoder) *Normalizer {
	return &Normalizer{decoder: decoder}
}

// NormalizeRun returns one table per group holding the rows of every member,
// in member order. Any member failing to decode fails the whole run.
func (n *Normalizer) NormalizeRun(ctx context.Context, members []domain.Member) (domain.TableSet, error) {
	acc := domain.NewTableSet()
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return domain.TableSet{}, err
		}

		datasets, err := n.decoder.Decode(ctx, m.Data)
		if err != nil {
			return domain.TableSet{}, fmt.Errorf("decode %s: %w", m.Name, err)
		}
		set, err := domain.NormalizeMember(datasets)
		if err != nil {
			return domain.TableSet{}, fmt.Errorf("normalize %s: %w", m.Name, err)
		}
		if acc, err = acc.Merge(set); err != nil {
			return domain.TableSet{}, fmt.Errorf("merge %s: %w", m.Name, err)
		}
	}
	return acc, nil
}
