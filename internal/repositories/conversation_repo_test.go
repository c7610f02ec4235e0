package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ConversationRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    ConversationRepository
	convID  uuid.UUID
	context context.Context
}

func (suite *ConversationRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewConversationRepo(mock)
	suite.convID = uuid.New()
	suite.context = context.Background()
}

func (suite *ConversationRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestConversationRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ConversationRepoTestSuite))
}

func (suite *ConversationRepoTestSuite) conversationRow(count int, lastDate time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "owner_id", "message_count_today", "last_message_date", "last_message", "last_forward_id", "created_at",
	}).AddRow(suite.convID, int64(1), int64(2), count, lastDate, time.Now(), (*int64)(nil), time.Now())
}

func (suite *ConversationRepoTestSuite) TestGetOrCreate() {
	suite.mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(pgxmock.AnyArg(), int64(1), int64(2)).
		WillReturnRows(suite.conversationRow(0, time.Time{}))

	conv, err := suite.repo.GetOrCreate(suite.context, 1, 2)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.convID, conv.ID)
	assert.Equal(suite.T(), int64(1), conv.UserID)
	assert.Equal(suite.T(), int64(2), conv.OwnerID)
}

func (suite *ConversationRepoTestSuite) TestTryConsumeDailyQuota_Admitted() {
	today := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	suite.mock.ExpectQuery(`UPDATE conversations SET`).
		WithArgs(int64(1), int64(2), 2, "2026-08-01").
		WillReturnRows(pgxmock.NewRows([]string{"message_count_today"}).AddRow(1))

	count, allowed, err := suite.repo.TryConsumeDailyQuota(suite.context, 1, 2, 2, today)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), allowed)
	assert.Equal(suite.T(), 1, count)
}

func (suite *ConversationRepoTestSuite) TestTryConsumeDailyQuota_CapReached() {
	// The guard predicate matches no row once the counter hit the cap
	// for today; that surfaces as no rows, not as an error.
	today := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	suite.mock.ExpectQuery(`UPDATE conversations SET`).
		WithArgs(int64(1), int64(2), 2, "2026-08-01").
		WillReturnRows(pgxmock.NewRows([]string{"message_count_today"}))

	count, allowed, err := suite.repo.TryConsumeDailyQuota(suite.context, 1, 2, 2, today)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)
	assert.Equal(suite.T(), 2, count)
}

func (suite *ConversationRepoTestSuite) TestSetForwardRef() {
	suite.mock.ExpectExec(`UPDATE conversations SET last_forward_id = \$2`).
		WithArgs(suite.convID, int64(555)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.SetForwardRef(suite.context, suite.convID, 555)
	assert.NoError(suite.T(), err)
}

func (suite *ConversationRepoTestSuite) TestGetByForwardRef_Found() {
	suite.mock.ExpectQuery(`FROM conversations WHERE owner_id = \$1 AND last_forward_id = \$2`).
		WithArgs(int64(2), int64(555)).
		WillReturnRows(suite.conversationRow(1, time.Now()))

	conv, err := suite.repo.GetByForwardRef(suite.context, 2, 555)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), conv)
	assert.Equal(suite.T(), suite.convID, conv.ID)
}

func (suite *ConversationRepoTestSuite) TestGetByForwardRef_NotFound() {
	suite.mock.ExpectQuery(`FROM conversations WHERE owner_id = \$1 AND last_forward_id = \$2`).
		WithArgs(int64(2), int64(999)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	conv, err := suite.repo.GetByForwardRef(suite.context, 2, 999)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), conv)
}
