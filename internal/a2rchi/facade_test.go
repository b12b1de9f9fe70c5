package a2rchi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/pipeline"
)

func TestFacadeUpdateRejectsUnknownPipeline(t *testing.T) {
	facade, _ := newQAFacade(t)
	err := facade.Update("does-not-exist")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownPipeline))
	require.Equal(t, "qa", facade.ActiveName())
}

func TestFacadeStreamFailsWhenPipelineDoesNotSupportIt(t *testing.T) {
	facade, _ := newQAFacade(t)
	_, err := facade.Stream(context.Background(), pipeline.Input{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoStream))
}
