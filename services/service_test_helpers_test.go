package services

import (
	"ShopHub/bus"
	"ShopHub/models"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库绑定单连接，多连接会各开一个空库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrateAll(db))
	return db
}

// recordingBus 记录所有 Publish，测试里断言广播内容和顺序
type recordingBus struct {
	mu        sync.Mutex
	published []recordedBroadcast
}

type recordedBroadcast struct {
	Group string
	Msg   *bus.Broadcast
}

func (b *recordingBus) Join(group string, sub bus.Subscriber)  {}
func (b *recordingBus) Leave(group string, sub bus.Subscriber) {}

func (b *recordingBus) Publish(group string, msg *bus.Broadcast) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, recordedBroadcast{Group: group, Msg: msg})
}

func (b *recordingBus) eventsFor(group string) []bus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var events []bus.Event
	for _, p := range b.published {
		if p.Group == group {
			events = append(events, p.Msg.Data)
		}
	}
	return events
}

func createUser(t *testing.T, db *gorm.DB, username, userType string) *models.User {
	t.Helper()
	user := &models.User{
		Email:    fmt.Sprintf("%s@example.com", username),
		Username: username,
		Type:     userType,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createAgent(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := createUser(t, db, username, "agent")
	require.NoError(t, db.Create(&models.SupportAgent{UserID: user.ID, IsAvailable: true}).Error)
	return user
}

func agentProfile(t *testing.T, db *gorm.DB, userID uint) *models.SupportAgent {
	t.Helper()
	var profile models.SupportAgent
	require.NoError(t, db.Where("user_id = ?", userID).First(&profile).Error)
	return &profile
}
