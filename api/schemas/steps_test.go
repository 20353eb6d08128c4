// File: api/schemas/steps_test.go
package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLocatorSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *LocatorSpec
		wantErr bool
	}{
		{"nil spec is allowed", nil, false},
		{"selector only", &LocatorSpec{Selector: "#login"}, false},
		{"role with name", &LocatorSpec{Role: "button", Name: "Submit"}, false},
		{"label only", &LocatorSpec{Label: "Email"}, false},
		{"coordinate only", &LocatorSpec{Coordinate: &Point{X: 10, Y: 20}}, false},
		{"empty spec", &LocatorSpec{}, true},
		{"two strategies", &LocatorSpec{Selector: "#a", Label: "Email"}, true},
		{"name without role", &LocatorSpec{Selector: "#a", Name: "Submit"}, true},
		{"bad cardinality", &LocatorSpec{Selector: "#a", Cardinality: "some"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocatorSpecDefaults(t *testing.T) {
	var nilSpec *LocatorSpec
	assert.Equal(t, CardinalityOne, nilSpec.EffectiveCardinality())
	assert.Equal(t, CardinalityOne, (&LocatorSpec{Selector: "#a"}).EffectiveCardinality())
	assert.Equal(t, CardinalityAll, (&LocatorSpec{Selector: "#a", Cardinality: CardinalityAll}).EffectiveCardinality())

	assert.Equal(t, "selector", (&LocatorSpec{Selector: "#a"}).Strategy())
	assert.Equal(t, "role", (&LocatorSpec{Role: "button"}).Strategy())
	assert.Equal(t, "none", nilSpec.Strategy())
}

func TestStepRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     StepRequest
		wantErr bool
	}{
		{"unknown action", StepRequest{Action: "teleport"}, true},
		{"open without url", StepRequest{Action: ActionOpen}, true},
		{"open with url", StepRequest{Action: ActionOpen, Params: StepParams{URL: "https://x.test"}}, false},
		{"close needs nothing", StepRequest{Action: ActionClose}, false},
		{"click without target or position", StepRequest{Action: ActionClick}, true},
		{
			"click with page position",
			StepRequest{Action: ActionClick, Params: StepParams{Position: &Point{X: 5, Y: 5}}},
			false,
		},
		{"fill without target", StepRequest{Action: ActionFill, Params: StepParams{Text: "x"}}, true},
		{"press without key", StepRequest{Action: ActionPress}, true},
		{"press page-global", StepRequest{Action: ActionPress, Params: StepParams{Key: "Enter"}}, false},
		{
			"select without options",
			StepRequest{Action: ActionSelect, Target: &LocatorSpec{Selector: "#c"}},
			true,
		},
		{
			"upload without files",
			StepRequest{Action: ActionUpload, Target: &LocatorSpec{Selector: "#f"}},
			true,
		},
		{
			"drag without destination",
			StepRequest{Action: ActionDrag, Target: &LocatorSpec{Selector: "#src"}},
			true,
		},
		{
			"drag with both ends",
			StepRequest{
				Action: ActionDrag,
				Target: &LocatorSpec{Selector: "#src"},
				Params: StepParams{DragTarget: &LocatorSpec{Selector: "#dst"}},
			},
			false,
		},
		{"scroll page without target", StepRequest{Action: ActionScroll}, false},
		{
			"scroll into view without target",
			StepRequest{Action: ActionScroll, Params: StepParams{Method: ScrollIntoView}},
			true,
		},
		{"wait_for_selector without selector", StepRequest{Action: ActionWaitForSelector}, true},
		{"screenshot needs nothing", StepRequest{Action: ActionScreenshot}, false},
		{
			"invalid target propagates",
			StepRequest{Action: ActionClick, Target: &LocatorSpec{}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationDecoding(t *testing.T) {
	t.Run("yaml string", func(t *testing.T) {
		var w WaitPolicy
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 2m30s\npoll_interval: 250ms\n"), &w))
		assert.Equal(t, 150*time.Second, w.Timeout.Std())
		assert.Equal(t, 250*time.Millisecond, w.PollInterval.Std())
	})

	t.Run("yaml integer nanoseconds", func(t *testing.T) {
		var w WaitPolicy
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 1000000000\n"), &w))
		assert.Equal(t, time.Second, w.Timeout.Std())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var w WaitPolicy
		assert.Error(t, yaml.Unmarshal([]byte("timeout: fast\n"), &w))
	})

	t.Run("json round trip", func(t *testing.T) {
		var d Duration
		require.NoError(t, d.UnmarshalJSON([]byte(`"1.5s"`)))
		assert.Equal(t, 1500*time.Millisecond, d.Std())
		out, err := d.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, `"1.5s"`, string(out))
	})
}
