package redis

import (
	"context"
	"reflect"

	"github.com/redis/go-redis/v9"
	omitnilpointers "github.com/sharetube/studio/pkg/omit-nil-pointers"
)

// hsetStruct writes the fields of a flat struct into a hash, keyed by their redis tags.
// Nil pointer fields are left out.
func (r *Repo) hsetStruct(ctx context.Context, c redis.Pipeliner, key string, value any) {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	fields := make(map[string]any, v.NumField())
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("redis")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = v.Field(i).Interface()
	}

	c.HSet(ctx, key, omitnilpointers.OmitNilPointers(fields))
}

func (r *Repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
