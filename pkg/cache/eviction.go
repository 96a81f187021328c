package cache

import (
	"math/rand"
	"sort"
	"strings"
)

// Policy 淘汰策略类型
type Policy string

const (
	PolicyLRU    Policy = "lru"    // Least Recently Used
	PolicyLFU    Policy = "lfu"    // Least Frequently Used
	PolicyFIFO   Policy = "fifo"   // First In First Out
	PolicyTTL    Policy = "ttl"    // 按创建时间，与 FIFO 同序
	PolicyRandom Policy = "random" // 随机淘汰
)

// ValidPolicy 判断字符串是否是已知的淘汰策略。
func ValidPolicy(s string) bool {
	switch Policy(strings.ToLower(s)) {
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyTTL, PolicyRandom:
		return true
	}
	return false
}

// rankVictims 按策略对候选条目排序，返回淘汰顺序（最先淘汰的在前）。
//
// 先按策略本身的顺序排列（lru: 最久未访问在前；lfu: 命中最少在前；
// fifo/ttl: 创建最早在前；random: 任意排列），再按优先级做一次稳定排序，
// 使低优先级条目总是先于高优先级条目被淘汰，策略顺序仅在同优先级内生效。
func rankVictims(entries map[string]*Entry, policy Policy) []*Entry {
	candidates := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		candidates = append(candidates, entry)
	}

	switch policy {
	case PolicyLRU:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].LastAccessedAt.Before(candidates[j].LastAccessedAt)
		})
	case PolicyLFU:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].AccessCount < candidates[j].AccessCount
		})
	case PolicyFIFO, PolicyTTL:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
	case PolicyRandom:
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	default:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].LastAccessedAt.Before(candidates[j].LastAccessedAt)
		})
	}

	// 优先级始终支配策略顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	return candidates
}

// victimCount 计算一次淘汰批次应移除的条目数。
//
// 条目数超限固定淘汰 1 个；字节数超限按每步释放约十分之一容量估算：
// ceil(newSize / (maxSizeBytes/10))。两者同时超限取较大值。
// 这是一个启发式算法而非精确的装箱保证：单次淘汰可能多释放，
// 也可能（罕见地）少释放，写入在淘汰后无条件继续。
func victimCount(incomingSize, totalSize, maxSizeBytes int64, count, maxEntries int) int {
	needed := 0

	if maxEntries > 0 && count+1 > maxEntries {
		needed = 1
	}

	if maxSizeBytes > 0 && totalSize+incomingSize > maxSizeBytes {
		step := maxSizeBytes / 10
		if step <= 0 {
			step = 1
		}
		n := int((incomingSize + step - 1) / step)
		if n < 1 {
			n = 1
		}
		if n > needed {
			needed = n
		}
	}

	if needed > count {
		needed = count
	}
	return needed
}
