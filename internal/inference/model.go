package inference

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/analytica/internal/classifier"
)

type tensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type inputTensor struct {
	Name     string  `json:"name"`
	Shape    []int   `json:"shape"`
	Datatype string  `json:"datatype"`
	Data     []int64 `json:"data"`
}

type inferRequest struct {
	Inputs []inputTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string   `json:"model_name"`
	Outputs   []tensor `json:"outputs"`
}

// Model calls POST /v2/models/{name}/infer.
type Model struct {
	client *resty.Client
	name   string
}

// Forward sends one sequence and returns the logits of the first output
// (or the one named "logits" when several are returned).
func (m *Model) Forward(ctx context.Context, enc classifier.Encoding) ([]float64, error) {
	shape := []int{1, len(enc.InputIDs)}
	body := inferRequest{Inputs: []inputTensor{
		{Name: "input_ids", Shape: shape, Datatype: "INT64", Data: enc.InputIDs},
		{Name: "attention_mask", Shape: shape, Datatype: "INT64", Data: enc.AttentionMask},
	}}
	var out inferResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v2/models/" + url.PathEscape(m.name) + "/infer")
	if err != nil {
		return nil, fmt.Errorf("infer request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("infer %s: status %d", m.name, resp.StatusCode())
	}
	if len(out.Outputs) == 0 {
		return nil, fmt.Errorf("infer %s: no outputs", m.name)
	}
	logits := out.Outputs[0]
	for _, o := range out.Outputs {
		if o.Name == "logits" {
			logits = o
			break
		}
	}
	return logits.Data, nil
}
