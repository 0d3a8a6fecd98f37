package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

func TestStartPostgresWithoutRuntime(t *testing.T) {
	orig := genericContainer
	t.Cleanup(func() { genericContainer = orig })

	genericContainer = func(context.Context, testcontainers.GenericContainerRequest) (testcontainers.Container, error) {
		panic("rootless Docker not found")
	}

	tc, err := StartPostgres(context.Background())
	if err == nil {
		t.Fatal("expected an error when the runtime panics")
	}
	if tc != nil {
		t.Errorf("expected nil container, got %+v", tc)
	}
	if !strings.Contains(err.Error(), "rootless Docker not found") {
		t.Errorf("error should carry the panic value, got %v", err)
	}
}

func TestStartPostgresReturnsStartError(t *testing.T) {
	orig := genericContainer
	t.Cleanup(func() { genericContainer = orig })

	errRefused := errors.New("connection refused")
	genericContainer = func(context.Context, testcontainers.GenericContainerRequest) (testcontainers.Container, error) {
		return nil, errRefused
	}

	if _, err := StartPostgres(context.Background()); !errors.Is(err, errRefused) {
		t.Errorf("expected wrapped start error, got %v", err)
	}
}
