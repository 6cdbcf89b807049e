// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import "context"

type actorKey struct{}

// WithActor records who is performing the current unit of work. Repositories stamp it into
// create_user, update_user and delete_user.
func WithActor(ctx context.Context, actor interface{}) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor.
func ActorFromContext(ctx context.Context) (interface{}, bool) {
	actor := ctx.Value(actorKey{})
	return actor, actor != nil
}

// Order selects the sort of a list call. An empty Field with Desc sorts by id descending.
type Order struct {
	Field string
	Desc  bool
}

// ParseOrder accepts the direction spellings used by list endpoints: "asc", "desc",
// "descending". Anything else is ascending.
func ParseOrder(field, direction string) *Order {
	switch direction {
	case "desc", "descending", "DESC":
		return &Order{Field: field, Desc: true}
	}
	if field == "" {
		return nil
	}
	return &Order{Field: field}
}
