package config

import (
	"context"
	"errors"
	"testing"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/stretchr/testify/assert"
)

func noop(ctx context.Context, args ...any) error { return nil }

func TestJobHandler_Register(t *testing.T) {
	jh := NewJobHandler()

	err := jh.Register("job1", noop)
	assert.NoError(t, err)

	err = jh.Register("job1", noop)
	assert.ErrorIs(t, err, custom_errors.ErrHandlerExists)
	assert.Contains(t, err.Error(), "already registered")
}

func TestJobHandler_Exists(t *testing.T) {
	jh := NewJobHandler()
	assert.False(t, jh.Exists("job1"))

	_ = jh.Register("job1", noop)
	assert.True(t, jh.Exists("job1"))
}

func TestJobHandler_Execute(t *testing.T) {
	jh := NewJobHandler()
	ctx := context.Background()

	_ = jh.Register("job1", func(ctx context.Context, args ...any) error {
		assert.Len(t, args, 2)
		assert.Equal(t, "hello", args[0])
		assert.Equal(t, 123, args[1])
		return nil
	})

	err := jh.Execute(ctx, "job1", "hello", 123)
	assert.NoError(t, err)

	err = jh.Execute(ctx, "notfound")
	assert.ErrorIs(t, err, custom_errors.ErrHandlerNotFound)

	_ = jh.Register("job2", func(ctx context.Context, args ...any) error {
		return errors.New("some error")
	})
	err = jh.Execute(ctx, "job2")
	assert.EqualError(t, err, "some error")
}

func TestJobHandler_Execute_RecoversPanic(t *testing.T) {
	jh := NewJobHandler()
	_ = jh.Register("boom", func(ctx context.Context, args ...any) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	err := jh.Execute(context.Background(), "boom")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic in handler 'boom'")
}

func TestJobHandler_List(t *testing.T) {
	jh := NewJobHandler()

	_ = jh.Register("job2", noop)
	_ = jh.Register("job1", noop)

	assert.Equal(t, []string{"job1", "job2"}, jh.List())
}
