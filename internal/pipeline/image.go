package pipeline

import (
	"context"
	"fmt"

	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/tokenlimit"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// ImageProcessingPipeline wraps a single multimodal chain: it renders a
// prompt template (with no required input variables of its own) and
// invokes an llm.ImageModel with the rendered text plus the request's
// images.
type ImageProcessingPipeline struct {
	Chain  *ChainWrapper
	images [][]byte // set by Invoke just before the chain's closure reads it
}

// NewImageProcessingPipeline builds an ImageProcessingPipeline. model
// must implement llm.ImageModel.
func NewImageProcessingPipeline(model llm.Model, tmpl *prompt.ValidatedPromptTemplate, maxTokens int, logger *logging.Logger) (*ImageProcessingPipeline, error) {
	imageModel, ok := model.(llm.ImageModel)
	if !ok {
		return nil, fmt.Errorf("pipeline: image processing model does not implement llm.ImageModel")
	}

	p := &ImageProcessingPipeline{}

	chainFunc := func(ctx context.Context, vars map[string]string) (string, error) {
		rendered, err := tmpl.Format(vars)
		if err != nil {
			return "", err
		}
		return imageModel.InvokeWithImages(ctx, rendered, p.images)
	}

	chain, err := NewChainWrapper(chainFunc, model, tmpl, nil, nil, maxTokens, 0, logger)
	if err != nil {
		return nil, err
	}
	p.Chain = chain

	return p, nil
}

func (p *ImageProcessingPipeline) UpdateRetriever(vectorcollection.Collection) {}

// Invoke renders the configured prompt and passes it, together with
// in.Images, to the underlying multimodal model.
func (p *ImageProcessingPipeline) Invoke(ctx context.Context, in Input) (Output, error) {
	p.images = in.Images

	answer, _, err := p.Chain.Invoke(ctx, tokenlimit.Input{})
	if err != nil {
		return Output{}, err
	}

	return Output{Answer: answer}, nil
}
