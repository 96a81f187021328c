// Package viewport 实现视口窗口计算：给定一个大的有序序列和当前的
// 滚动位置，只计算可见的切片，用于大列表的按需渲染。
package viewport

// Config 视口窗口配置。
type Config struct {
	ItemHeight int  `yaml:"item_height" mapstructure:"item_height"` // 单个条目的固定高度
	BufferSize int  `yaml:"buffer_size" mapstructure:"buffer_size"` // 分页缓冲提示，不参与窗口计算
	Overscan   int  `yaml:"overscan" mapstructure:"overscan"`       // 可见区域上下额外渲染的条目数
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`         // 关闭时整个序列始终可见
}

// Window 一次窗口计算的结果，可见切片为 [StartIndex, EndIndex)。
type Window struct {
	StartIndex  int           `json:"start_index"`
	EndIndex    int           `json:"end_index"`
	Items       []interface{} `json:"items"`
	TotalHeight int           `json:"total_height"` // 虚拟总高度 = len * ItemHeight
	OffsetY     int           `json:"offset_y"`     // 可见窗口的纵向偏移 = StartIndex * ItemHeight
}

// Windower 视口窗口计算器。
type Windower struct {
	config Config
	items  []interface{}
}

// NewWindower 创建窗口计算器。
func NewWindower(items []interface{}, config Config) *Windower {
	return &Windower{config: config, items: items}
}

// SetItems 替换底层序列。
func (w *Windower) SetItems(items []interface{}) {
	w.items = items
}

// Len 返回底层序列长度。
func (w *Windower) Len() int {
	return len(w.items)
}

// Window 根据滚动位置计算可见窗口：
//
//	startIndex = max(0, floor(scrollTop/itemHeight) - overscan)
//	endIndex   = min(len, ceil((scrollTop+containerHeight)/itemHeight) + overscan)
//
// 窗口化被关闭时整个序列可见。
func (w *Windower) Window(scrollTop, containerHeight int) Window {
	length := len(w.items)
	totalHeight := length * w.config.ItemHeight

	if !w.config.Enabled || w.config.ItemHeight <= 0 {
		return Window{
			StartIndex:  0,
			EndIndex:    length,
			Items:       w.items,
			TotalHeight: totalHeight,
			OffsetY:     0,
		}
	}

	start := scrollTop/w.config.ItemHeight - w.config.Overscan
	if start < 0 {
		start = 0
	}

	end := ceilDiv(scrollTop+containerHeight, w.config.ItemHeight) + w.config.Overscan
	if end > length {
		end = length
	}
	// 滚动越过序列末尾时窗口为空，起始下标收敛到已截断的结束下标
	if start > end {
		start = end
	}

	return Window{
		StartIndex:  start,
		EndIndex:    end,
		Items:       w.items[start:end],
		TotalHeight: totalHeight,
		OffsetY:     start * w.config.ItemHeight,
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
