package repository

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var broadcastCols = []string{
	"id", "subject", "body_html", "sms_body", "video_url", "cta_url", "cta_label",
	"recipient_ids", "roles", "channel_chat", "channel_email", "channel_sms", "producer_channel",
	"status", "scheduled_at", "sent_at", "stats", "last_error", "created_by", "created_at", "updated_at",
}

func TestBroadcastGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := &BroadcastRepository{DB: db}
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM broadcasts WHERE id=$1")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(broadcastCols).AddRow(
			"b1", "Hello", "<p>hi</p>", "hi", "", "", "",
			"{r1,r2}", "{}", true, true, false, "C123",
			"sent", nil, created, []byte(`{"totalRecipients":2,"chatSent":2}`), "", "admin", created, nil,
		))

	b, err := repo.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, b.RecipientIDs)
	assert.Equal(t, model.BroadcastSent, b.Status)
	assert.True(t, b.Channels.Chat)
	assert.False(t, b.Channels.SMS)
	require.NotNil(t, b.Stats)
	assert.Equal(t, 2, b.Stats.ChatSent)
	assert.Nil(t, b.ScheduledAt)
	assert.Equal(t, model.TargetByIDs, b.Targeting().Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcastGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := &BroadcastRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM broadcasts WHERE id=$1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(broadcastCols))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestTransitionStatusIsConditional(t *testing.T) {
	db, mock := newMock(t)
	repo := &BroadcastRepository{DB: db}
	from := []model.BroadcastStatus{model.BroadcastDraft, model.BroadcastScheduled}

	q := regexp.QuoteMeta("UPDATE broadcasts SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)")
	mock.ExpectExec(q).WithArgs("sending", "b1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("sending", "b1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TransitionStatus(context.Background(), "b1", from, model.BroadcastSending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(context.Background(), "b1", from, model.BroadcastSending)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentRequiresSending(t *testing.T) {
	db, mock := newMock(t)
	repo := &BroadcastRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("SET status='sent'")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "b1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "b1", model.Stats{TotalRecipients: 1}, time.Now())
	assert.ErrorIs(t, err, appErrors.ErrInvalidStatus)
}

var deliveryCols = []string{
	"id", "broadcast_id", "recipient_id",
	"chat_status", "chat_message_id", "chat_error", "chat_sent_at",
	"email_status", "email_message_id", "email_error", "email_sent_at",
	"sms_status", "sms_message_id", "sms_error", "sms_sent_at",
	"read_at", "created_at",
}

func TestCreateIfAbsentReturnsExistingOnConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM deliveries WHERE id=$1")).
		WithArgs("b1:r1").
		WillReturnRows(sqlmock.NewRows(deliveryCols).AddRow(
			"b1:r1", "b1", "r1",
			"sent", "1700000000.0001", "", now,
			"pending", "", "", nil,
			"skipped", "", "no phone number", nil,
			nil, now,
		))

	d, created, err := repo.CreateIfAbsent(context.Background(), &model.Delivery{
		ID: "b1:r1", BroadcastID: "b1", RecipientID: "r1",
		Chat:  model.ChannelState{Status: model.ChannelPending},
		Email: model.ChannelState{Status: model.ChannelPending},
		SMS:   model.ChannelState{Status: model.ChannelSkipped},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.ChannelSent, d.Chat.Status)
	assert.Equal(t, "1700000000.0001", d.Chat.MessageID)
	assert.Equal(t, model.ChannelSkipped, d.SMS.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChannelTouchesOnlyThatChannel(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("SET email_status=$1, email_message_id=$2, email_error=$3, email_sent_at=$4")+
		".*"+regexp.QuoteMeta("WHERE id=$5 AND email_status='pending'")).
		WithArgs("failed", "", "smtp: 550 mailbox unavailable", nil, "b1:r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateChannel(context.Background(), "b1:r1", model.ChannelEmail, model.ChannelState{
		Status: model.ChannelFailed,
		Error:  "smtp: 550 mailbox unavailable",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChannelRejectsUnknownChannel(t *testing.T) {
	db, _ := newMock(t)
	repo := &DeliveryRepository{DB: db}

	_, err := repo.UpdateChannel(context.Background(), "b1:r1", model.Channel("fax"), model.ChannelState{})
	assert.Error(t, err)
}

func TestCountForRecipientSince(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("r1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountForRecipientSince(context.Background(), "r1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRecipientGetByIDsEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := &RecipientRepository{DB: db}

	got, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientGetByRoles(t *testing.T) {
	db, mock := newMock(t)
	repo := &RecipientRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "chat_id", "role", "location"}).
			AddRow("r1", "Ann", "ann@example.com", "", "U0123ABCDE", "coach", "Austin").
			AddRow("r2", "Ben", "", "5125550100", "", "coach", "Dallas"))

	got, err := repo.GetByRoles(context.Background(), []string{"coach"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "U0123ABCDE", got[0].ChatID)
	assert.Equal(t, "5125550100", got[1].Phone)
}

func TestRecipientGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := &RecipientRepository{DB: db}
	cols := []string{"id", "name", "email", "phone", "chat_id", "role", "location"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM recipients WHERE id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "Ann", "ann@example.com", "", "", "coach", "Austin"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM recipients WHERE id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(cols))

	got, err := repo.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ann", got.Name)

	got, err = repo.GetByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "héllo", truncate("  héllo  ", 10))
	assert.Equal(t, "hé", truncate("héllo", 2))
	assert.Equal(t, "日本", truncate("日本語のエラー", 2))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("é", 600), 1000)))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("é", 1200), 1000)))
	assert.Equal(t, 1000, utf8.RuneCountInString(truncate(strings.Repeat("é", 1200), 1000)))
}
