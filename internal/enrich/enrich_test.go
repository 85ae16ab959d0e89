package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/resilience"
	"github.com/sells-group/crm-scoring/internal/scoring"
	"github.com/sells-group/crm-scoring/pkg/anthropic"
)

// MockClient implements anthropic.Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:   "msg_1",
		Text: text,
	}
}

func leadRequest() Request {
	return Request{
		Profile: scoring.LeadProfile(),
		Subject: model.Subject{ID: "00Q1", Kind: model.SubjectLead, Title: "VP of Sales", Email: "jo@acme.io"},
		Aggregates: model.RawAggregates{
			Web: model.WebActivity{Sessions: 4, PageViews: 12, FormSubmissions: 1},
		},
	}
}

func fastConfig() Config {
	return Config{
		Model:   "claude-haiku-4-5-20251001",
		Timeout: time.Second,
		RPS:     1000,
		Burst:   10,
		Circuit: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}
}

func TestAdapter_Success(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			strings.Contains(req.System, "intent_signals") &&
			strings.Contains(req.Prompt, `"00Q1"`)
	})).Return(textResponse("```json\n"+`{
		"factors": {"engagement": 72, "fit_score": 55},
		"insights": ["Visited pricing twice"],
		"recommendations": ["Send a demo invite", " "],
		"confidence": 0.83
	}`+"\n```"), nil)

	a := NewAdapter(client, fastConfig())
	res := a.Enrich(context.Background(), leadRequest())

	require.True(t, res.OK(), "reason=%s err=%v", res.Reason, res.Err)
	assert.Equal(t, map[model.FactorKey]int{model.FactorEngagement: 72, model.FactorFit: 55}, res.Enrichment.Factors)
	assert.Equal(t, []string{"Visited pricing twice"}, res.Enrichment.Insights)
	assert.Equal(t, []string{"Send a demo invite"}, res.Enrichment.Recommendations)
	assert.InDelta(t, 0.83, res.Enrichment.Confidence, 1e-9)
	client.AssertExpectations(t)
}

func TestAdapter_NilClientIsDisabled(t *testing.T) {
	res := NewAdapter(nil, Config{}).Enrich(context.Background(), leadRequest())
	assert.False(t, res.OK())
	assert.Equal(t, ReasonDisabled, res.Reason)

	var nilAdapter *Adapter
	assert.Equal(t, ReasonDisabled, nilAdapter.Enrich(context.Background(), leadRequest()).Reason)
	assert.Equal(t, ReasonDisabled, Disabled{}.Enrich(context.Background(), leadRequest()).Reason)
}

func TestAdapter_MalformedResponse(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I cannot score this lead."), nil)

	res := NewAdapter(client, fastConfig()).Enrich(context.Background(), leadRequest())
	assert.False(t, res.OK())
	assert.Equal(t, ReasonMalformed, res.Reason)
	assert.Error(t, res.Err)
}

func TestAdapter_ProviderError(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("anthropic: create message: 500"))

	res := NewAdapter(client, fastConfig()).Enrich(context.Background(), leadRequest())
	assert.Equal(t, ReasonProviderError, res.Reason)
}

func TestAdapter_Timeout(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	res := NewAdapter(client, cfg).Enrich(context.Background(), leadRequest())
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestAdapter_CircuitOpensAfterFailures(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Times(2)

	a := NewAdapter(client, fastConfig())
	for i := 0; i < 2; i++ {
		assert.Equal(t, ReasonProviderError, a.Enrich(context.Background(), leadRequest()).Reason)
	}

	res := a.Enrich(context.Background(), leadRequest())
	assert.Equal(t, ReasonCircuitOpen, res.Reason)
	assert.Equal(t, resilience.CircuitOpen, a.Breaker().State())
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestAdapter_RateLimitWaitExceedsDeadline(t *testing.T) {
	client := &MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{"confidence":0.5}`), nil).Once()

	cfg := fastConfig()
	cfg.RPS = 0.01
	cfg.Burst = 1
	cfg.Timeout = 50 * time.Millisecond
	a := NewAdapter(client, cfg)

	assert.True(t, a.Enrich(context.Background(), leadRequest()).OK())
	res := a.Enrich(context.Background(), leadRequest())
	assert.Equal(t, ReasonRateLimited, res.Reason)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestParse_Scales(t *testing.T) {
	p := scoring.HealthProfile()
	tests := []struct {
		name string
		text string
		want map[model.FactorKey]int
	}{
		{
			name: "canonical",
			text: `{"factors":{"support_tickets":80,"activity_level":45},"confidence":0.7}`,
			want: map[model.FactorKey]int{model.FactorSupportTickets: 80, model.FactorActivityLevel: 45},
		},
		{
			name: "inferred unit scale",
			text: `{"factors":{"support_tickets":0.8,"activity_level":0.456},"confidence":0.7}`,
			want: map[model.FactorKey]int{model.FactorSupportTickets: 80, model.FactorActivityLevel: 46},
		},
		{
			name: "declared 20 point scale",
			text: `{"factors":{"support_tickets":16,"payment_history":20},"confidence":0.7,"scale":20}`,
			want: map[model.FactorKey]int{model.FactorSupportTickets: 80, model.FactorPaymentHistory: 100},
		},
		{
			name: "declared 10 point scale clamps",
			text: `{"factors":{"feature_adoption":7,"contract_value":14},"confidence":0.7,"scale":10}`,
			want: map[model.FactorKey]int{model.FactorFeatureAdoption: 70, model.FactorContractValue: 100},
		},
		{
			name: "negative clamps to zero",
			text: `{"factors":{"activity_level":-5},"confidence":0.7}`,
			want: map[model.FactorKey]int{model.FactorActivityLevel: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Factors)
		})
	}
}

func TestParse_DropsKeysOutsideProfile(t *testing.T) {
	got, err := Parse(`{"factors":{"engagement":90,"support_tickets":10,"vibes":99},"confidence":0.9}`, scoring.LeadProfile())
	require.NoError(t, err)
	assert.Equal(t, map[model.FactorKey]int{model.FactorEngagement: 90}, got.Factors)
}

func TestParse_ClampsOutOfRangeValues(t *testing.T) {
	got, err := Parse(`{"factors":{"engagement":1e20,"job_title":-5,"fit_score":250},"confidence":0.5,"scale":100}`, scoring.LeadProfile())
	require.NoError(t, err)
	assert.Equal(t, map[model.FactorKey]int{
		model.FactorEngagement: 100,
		model.FactorJobTitle:   0,
		model.FactorFit:        100,
	}, got.Factors)
}

func TestParse_Confidence(t *testing.T) {
	got, err := Parse(`Here you go: {"factors":{},"confidence":1.7} thanks`, scoring.LeadProfile())
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Empty(t, got.Factors)
	assert.NotNil(t, got.Insights)

	_, err = Parse(`{"factors":{"engagement":50}}`, scoring.LeadProfile())
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	for _, text := range []string{
		"",
		"not json",
		`{"factors":{"engagement":"high"},"confidence":0.5}`,
		`{"factors":{"engagement":50},"confidence":0.5,"scale":0}`,
	} {
		_, err := Parse(text, scoring.LeadProfile())
		assert.Error(t, err, text)
	}
}

func TestSystemPrompt_ListsProfileFactors(t *testing.T) {
	req := Request{Profile: scoring.HealthProfile(), Subject: model.Subject{Kind: model.SubjectAccount}}
	prompt := systemPrompt(req)
	for _, k := range scoring.HealthProfile().Keys() {
		assert.Contains(t, prompt, string(k))
	}
	assert.NotContains(t, prompt, string(model.FactorJobTitle))
	assert.Contains(t, prompt, "churn risk")
}
