package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Joined: итог Join. Sides[i] == nil, если i-я побочная задача упала,
// причина тогда в SideErrs[i].
type Joined[P, S any] struct {
	Primary  P
	Sides    []*S
	SideErrs []error
}

// Join запускает основную и побочные задачи одновременно и ждёт все.
// Ошибка основной задачи возвращается после завершения остальных, ошибки
// и паники побочных превращаются в nil-слоты. Общий контекст не отменяется
// при ошибке: ни одна задача не бросается на полпути.
func Join[P, S any](ctx context.Context, primary func(context.Context) (P, error), sides ...func(context.Context) (S, error)) (Joined[P, S], error) {
	out := Joined[P, S]{
		Sides:    make([]*S, len(sides)),
		SideErrs: make([]error, len(sides)),
	}

	var g errgroup.Group
	g.Go(func() (err error) {
		defer recoverInto(&err)
		out.Primary, err = primary(ctx)
		return err
	})
	for i, side := range sides {
		g.Go(func() error {
			var err error
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("task panicked: %v", p)
				}
				out.SideErrs[i] = err
			}()
			v, err := side(ctx)
			if err == nil {
				out.Sides[i] = &v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var zero P
		out.Primary = zero
		return out, err
	}
	return out, nil
}

func recoverInto(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("task panicked: %v", p)
	}
}
