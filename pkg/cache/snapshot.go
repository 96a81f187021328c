package cache

import (
	"context"
	"encoding/json"
	"time"
)

// snapshotKey 是缓存集合在持久化存储中的逻辑键。
// 后台任务和对象池默认不做持久化。
const snapshotKey = "cache"

// snapshotVersion 是快照格式的软版本号，只做标记，不承诺迁移。
const snapshotVersion = 1

// snapshot 持久化快照：一个逻辑集合对应一条记录。
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Entries []*Entry  `json:"entries"`
}

// persistAsync 异步写出当前条目快照。对调用方是发后即忘的：
// 写入失败只记录日志，内存状态始终是权威状态，操作不会回滚。
func (m *Manager) persistAsync() {
	if m.store == nil {
		return
	}

	m.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Entries: make([]*Entry, 0, len(m.entries)),
	}
	for _, entry := range m.entries {
		copied := *entry
		snap.Entries = append(snap.Entries, &copied)
	}
	m.mu.RUnlock()

	go func() {
		data, err := json.Marshal(snap)
		if err != nil {
			m.log.WithError(err).Warn("序列化缓存快照失败")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.store.Put(ctx, snapshotKey, data); err != nil {
			m.log.WithError(err).Warn("写入缓存快照失败")
		}
	}()
}

// restoreSnapshot 在构造时恢复上一次的快照，过期条目直接跳过。
// 快照不存在或损坏都不是错误，空缓存启动即可。
func (m *Manager) restoreSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := m.store.Get(ctx, snapshotKey)
	if err != nil || len(data) == 0 {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.log.WithError(err).Warn("解析缓存快照失败，按空缓存启动")
		return
	}

	now := time.Now()
	restored := 0
	for _, entry := range snap.Entries {
		if entry == nil || entry.Key == "" || entry.IsExpired(now) {
			continue
		}
		m.entries[entry.Key] = entry
		m.totalSize += entry.SizeBytes
		restored++
	}

	if restored > 0 {
		m.log.Infof("从快照恢复了 %d 个缓存条目", restored)
	}
}
