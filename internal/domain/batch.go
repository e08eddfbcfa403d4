package domain

// Batch is a read-only, ordered view of the file items in one upload session.
type Batch struct {
	Items   []FileItem
	Version uint64
}

// Complete reports whether the batch has items and every one of them is terminal.
func (b Batch) Complete() bool {
	if len(b.Items) == 0 {
		return false
	}
	for _, item := range b.Items {
		if !item.State.IsTerminal() {
			return false
		}
	}
	return true
}

// IdleCount returns the number of items still waiting to be uploaded.
func (b Batch) IdleCount() int {
	return b.count(ItemStateIdle)
}

// Counts groups the items by state.
func (b Batch) Counts() map[ItemState]int {
	counts := make(map[ItemState]int, 4)
	for _, item := range b.Items {
		counts[item.State]++
	}
	return counts
}

// Item returns the item stored at the given arena index.
func (b Batch) Item(index int) (FileItem, bool) {
	for _, item := range b.Items {
		if item.Index == index {
			return item, true
		}
	}
	return FileItem{}, false
}

func (b Batch) count(state ItemState) int {
	n := 0
	for _, item := range b.Items {
		if item.State == state {
			n++
		}
	}
	return n
}
