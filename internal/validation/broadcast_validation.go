package validation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

const (
	maxSubjectLen = 200
	maxSMSLen     = 160
)

func ValidateCreateBroadcast(ctx context.Context, request model.CreateBroadcastRequest, now time.Time) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Subject, validation.Required, validation.RuneLength(1, maxSubjectLen)),
		validation.Field(&request.SMSBody, validation.By(maxRunes(maxSMSLen))),
		validation.Field(&request.VideoURL, is.URL),
		validation.Field(&request.CTAURL, is.URL),
		validation.Field(&request.CTALabel, validation.When(request.CTAURL != "", validation.Required)),
		validation.Field(&request.Channels, validation.By(anyChannel)),
		validation.Field(&request.BodyHTML, validation.When(request.Channels.Chat || request.Channels.Email, validation.Required)),
		validation.Field(&request.ScheduledAt, validation.By(inFuture(now))),
	)
	if err == nil {
		err = validateTargeting(request)
	}
	if err != nil {
		return appErrors.NewValidationError(err.Error())
	}
	return nil
}

func ValidateSchedule(at time.Time, now time.Time) error {
	if err := inFuture(now)(&at); err != nil {
		return appErrors.NewValidationError("scheduled_at: " + err.Error())
	}
	return nil
}

func validateTargeting(r model.CreateBroadcastRequest) error {
	hasIDs := len(r.RecipientIDs) > 0 || (r.UserSelection != nil && len(r.UserSelection.SelectedUserIDs) > 0)
	if !hasIDs && len(r.Roles) == 0 {
		return errors.New("recipient_ids, user_selection.selected_user_ids or roles: at least one is required")
	}
	return nil
}

func maxRunes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if utf8.RuneCountInString(s) > n {
			return fmt.Errorf("must be at most %d characters", n)
		}
		return nil
	}
}

func anyChannel(value interface{}) error {
	c, _ := value.(model.Channels)
	if !c.Any() {
		return errors.New("at least one channel must be enabled")
	}
	return nil
}

func inFuture(now time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		at, _ := value.(*time.Time)
		if at == nil {
			return nil
		}
		if !at.After(now) {
			return errors.New("must be in the future")
		}
		return nil
	}
}
