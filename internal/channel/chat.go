package channel

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

const (
	// ReasonNoChatID is recorded when neither the stored id nor an email lookup resolves a chat user.
	ReasonNoChatID = "no valid chat id found"

	sectionTextLimit = 3000
	producerTimeout  = 30 * time.Second
)

var chatIDShape = regexp.MustCompile(`^[UW][A-Z0-9]{8,}$`)

// SlackAPI is the subset of *slack.Client the chat adapter calls.
type SlackAPI interface {
	GetUserByEmailContext(ctx context.Context, email string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// ChatIDCache remembers email -> chat user id lookups across dispatch passes.
type ChatIDCache interface {
	Get(ctx context.Context, email string) (string, bool)
	Set(ctx context.Context, email, chatID string)
}

type ChatAdapter struct {
	api     SlackAPI
	cache   ChatIDCache
	limiter *rate.Limiter
	log     *logrus.Logger
	wg      sync.WaitGroup
}

// NewChatAdapter returns an unconfigured adapter when no bot token is set.
func NewChatAdapter(cfg config.SlackConfig, cache ChatIDCache, log *logrus.Logger) *ChatAdapter {
	var api SlackAPI
	if cfg.BotToken != "" {
		opts := []slack.Option{}
		if cfg.APIURL != "" {
			opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
		}
		api = slack.New(cfg.BotToken, opts...)
	}
	return NewChatAdapterWithAPI(api, cache, cfg.RequestsPerSecond, log)
}

func NewChatAdapterWithAPI(api SlackAPI, cache ChatIDCache, rps float64, log *logrus.Logger) *ChatAdapter {
	return &ChatAdapter{
		api:     api,
		cache:   cache,
		limiter: newLimiter(rps),
		log:     log,
	}
}

func (a *ChatAdapter) Channel() model.Channel { return model.ChannelChat }

func (a *ChatAdapter) Configured() bool { return a.api != nil }

func (a *ChatAdapter) Addressable(r model.Recipient) bool {
	return strings.TrimSpace(r.ChatID) != "" || validEmail(r.Email)
}

func (a *ChatAdapter) Send(ctx context.Context, r model.Recipient, c Content) Result {
	if !a.Configured() {
		return Skipped("chat not configured")
	}

	userID, err := a.resolveUser(ctx, r)
	if err != nil {
		return Failed(err)
	}
	if userID == "" {
		return Skipped(ReasonNoChatID)
	}

	blocks, fallback, err := buildChatBlocks(c)
	if err != nil {
		return Failed(err)
	}

	if err := wait(ctx, a.limiter); err != nil {
		return Failed(err)
	}
	_, ts, err := a.api.PostMessageContext(ctx, userID,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"broadcastId": c.BroadcastID,
			"recipientId": r.ID,
		}).Warn("💬 [CHAT] Direct message failed")
		return Failed(err)
	}

	a.mirrorToProducer(c, blocks, fallback)
	return Sent(ts)
}

// resolveUser returns "" with a nil error when the recipient simply has no
// usable chat identity.
func (a *ChatAdapter) resolveUser(ctx context.Context, r model.Recipient) (string, error) {
	if id := strings.TrimSpace(r.ChatID); chatIDShape.MatchString(id) {
		return id, nil
	}

	email := strings.ToLower(strings.TrimSpace(r.Email))
	if !validEmail(email) {
		return "", nil
	}
	if a.cache != nil {
		if id, ok := a.cache.Get(ctx, email); ok {
			return id, nil
		}
	}

	if err := wait(ctx, a.limiter); err != nil {
		return "", err
	}
	user, err := a.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		if isUserNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if user == nil || !chatIDShape.MatchString(user.ID) {
		return "", nil
	}
	if a.cache != nil {
		a.cache.Set(ctx, email, user.ID)
	}
	return user.ID, nil
}

func isUserNotFound(err error) bool {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return slackErr.Err == "users_not_found"
	}
	return strings.Contains(err.Error(), "users_not_found")
}

// mirrorToProducer posts the rendered message once per dispatch pass to the
// producer channel. It is detached from the pass; failures are only logged.
func (a *ChatAdapter) mirrorToProducer(c Content, blocks []slack.Block, fallback string) {
	target := strings.TrimSpace(c.ProducerChannel)
	if target == "" || c.ProducerPost == nil {
		return
	}
	c.ProducerPost.Do(func() { a.postToProducer(c, target, blocks, fallback) })
}

func (a *ChatAdapter) postToProducer(c Content, target string, blocks []slack.Block, fallback string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), producerTimeout)
		defer cancel()

		_, _, err := a.api.PostMessageContext(ctx, target,
			slack.MsgOptionText(fallback, false),
			slack.MsgOptionBlocks(blocks...),
		)
		if err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"broadcastId": c.BroadcastID,
				"channel":     target,
			}).Warn("💬 [CHAT] Producer channel post failed")
			return
		}
		a.log.WithField("broadcastId", c.BroadcastID).Debug("💬 [CHAT] Mirrored to producer channel")
	}()
}

// Wait blocks until detached producer posts have finished.
func (a *ChatAdapter) Wait() {
	a.wg.Wait()
}

func buildChatBlocks(c Content) ([]slack.Block, string, error) {
	msg, err := FormatChat(c.BodyHTML)
	if err != nil {
		return nil, "", err
	}

	text := "*" + mrkdwnEsc.Replace(strings.TrimSpace(c.Subject)) + "*"
	if msg.Text != "" {
		text += "\n\n" + msg.Text
	}
	if c.VideoURL != "" {
		text += "\n\n<" + c.VideoURL + "|▶ Watch the video>"
	}
	if c.CTAURL != "" {
		label := c.CTALabel
		if label == "" {
			label = "Learn more"
		}
		text += "\n\n<" + c.CTAURL + "|" + mrkdwnEsc.Replace(label) + ">"
	}
	if c.ReadURL != "" {
		text += "\n\n<" + c.ReadURL + "|Open in app>"
	}

	var blocks []slack.Block
	for _, chunk := range chunkText(text, sectionTextLimit) {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false), nil, nil,
		))
	}
	for _, img := range msg.Images {
		blocks = append(blocks, slack.NewImageBlock(img.URL, img.Alt, "", nil))
	}

	return blocks, c.Subject, nil
}
