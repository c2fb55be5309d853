package channel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/unclebandit/broadcast-engine/internal/model"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"5125550100", "+15125550100", true},
		{"(512) 555-0100", "+15125550100", true},
		{"1-512-555-0100", "+15125550100", true},
		{"+44 20 7183 8750", "+442071838750", true},
		{"+15125550100", "+15125550100", true},
		{"555-0100", "", false},
		{"+1 555 123 4567", "", false},
		{"call me", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestComposeSMSTruncatesBodyKeepsLink(t *testing.T) {
	link := "https://app.liveplay.example/messages/7d3f0c1e-2b9a-4c55-9d0e-3f1a2b3c4d5e"
	body := strings.Repeat("A", 200)

	for i := 0; i < 3; i++ {
		msg := ComposeSMS("Important Update from LivePlay", body, link)
		assert.LessOrEqual(t, len([]rune(msg)), SMSLimit)
		assert.True(t, strings.HasSuffix(msg, " Read: "+link), msg)
		assert.True(t, strings.HasPrefix(msg, "New message: Important Update from LivePlay. A"), msg)
		assert.Contains(t, msg, "A... Read: ")
	}
}

func TestComposeSMSShortBodyUntouched(t *testing.T) {
	msg := ComposeSMS("Hi", "Practice moved to 6pm.", "https://l.example/m/1")
	assert.Equal(t, "New message: Hi. Practice moved to 6pm. Read: https://l.example/m/1", msg)
}

func TestComposeSMSLongSubjectSacrificesSubjectNotLink(t *testing.T) {
	link := "https://l.example/m/1"
	msg := ComposeSMS(strings.Repeat("S", 300), "body", link)
	assert.LessOrEqual(t, len([]rune(msg)), SMSLimit)
	assert.True(t, strings.HasSuffix(msg, " Read: "+link))
	assert.NotContains(t, msg, "body")
}

func TestComposeSMSEmptyBody(t *testing.T) {
	assert.Equal(t, "New message: Hi. Read: https://l.example/m/1", ComposeSMS("Hi", "  ", "https://l.example/m/1"))
}

func TestComposeSMSWithoutLinkHasNoReadSuffix(t *testing.T) {
	assert.Equal(t, "New message: Hi. body", ComposeSMS("Hi", "body", ""))
	assert.Equal(t, "New message: Hi.", ComposeSMS("Hi", "", ""))

	msg := ComposeSMS("Hi", strings.Repeat("B", 300), "")
	assert.Equal(t, SMSLimit, len([]rune(msg)))
	assert.NotContains(t, msg, "Read:")
}

func TestComposeSMSNeverExceedsLimit(t *testing.T) {
	for _, n := range []int{20, 80, 130, 141, 142, 150, 170, 400} {
		link := "https://l.example/" + strings.Repeat("x", n)
		for _, subject := range []string{"Hi", strings.Repeat("S", 120)} {
			msg := ComposeSMS(subject, strings.Repeat("B", 200), link)
			assert.LessOrEqual(t, len([]rune(msg)), SMSLimit, "link %d", n)
			assert.True(t, strings.HasPrefix(msg, "New message: "), msg)
		}
	}

	short := "https://l.example/" + strings.Repeat("x", 100)
	assert.True(t, strings.HasSuffix(ComposeSMS(strings.Repeat("S", 120), "b", short), " Read: "+short))
}

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestSMSAdapterSend(t *testing.T) {
	api := &fakeTwilio{}
	a := NewSMSAdapterWithAPI(api, "+15125550000", 0)

	res := a.Send(context.Background(), model.Recipient{ID: "r1", Phone: "512-555-0100"}, Content{
		Subject: "Hi", SMSBody: "See you there", ReadURL: "https://l.example/m/1",
	})
	assert.Equal(t, model.ChannelSent, res.Status)
	assert.Equal(t, "SM123", res.ProviderMessageID)
	require.NotNil(t, api.params.To)
	assert.Equal(t, "+15125550100", *api.params.To)
	assert.Equal(t, "New message: Hi. See you there Read: https://l.example/m/1", *api.params.Body)
}

func TestSMSAdapterSkippedVersusFailed(t *testing.T) {
	api := &fakeTwilio{err: errors.New("21211: invalid 'To' phone number")}
	a := NewSMSAdapterWithAPI(api, "+15125550000", 0)

	noPhone := a.Send(context.Background(), model.Recipient{ID: "r1"}, Content{Subject: "Hi"})
	assert.Equal(t, model.ChannelSkipped, noPhone.Status)
	assert.Nil(t, api.params, "provider must not be called without a phone number")

	failed := a.Send(context.Background(), model.Recipient{ID: "r2", Phone: "5125550100"}, Content{Subject: "Hi"})
	assert.Equal(t, model.ChannelFailed, failed.Status)
	assert.Contains(t, failed.Error, "21211")
}

func TestSMSAdapterUnconfigured(t *testing.T) {
	a := NewSMSAdapterWithAPI(nil, "", 0)
	assert.False(t, a.Configured())
	assert.Equal(t, model.ChannelSkipped, a.Send(context.Background(), model.Recipient{Phone: "5125550100"}, Content{}).Status)
}
