package domain

import "encoding/json"

// MaxListEntries 每个用户写出/持有期权列表的上限
const MaxListEntries = 10

// BoundedIDList 只追加、定长上限的期权 ID 列表
type BoundedIDList struct {
	ids []uint64
}

// NewBoundedIDList 由已有 ID 构造，超过上限返回 ErrListFull
func NewBoundedIDList(ids ...uint64) (BoundedIDList, error) {
	if len(ids) > MaxListEntries {
		return BoundedIDList{}, ErrListFull
	}
	return BoundedIDList{ids: append([]uint64(nil), ids...)}, nil
}

// Push 追加一个 ID，已满时返回 ErrListFull 且列表不变
func (l *BoundedIDList) Push(id uint64) error {
	if len(l.ids) >= MaxListEntries {
		return ErrListFull
	}
	l.ids = append(l.ids, id)
	return nil
}

func (l BoundedIDList) Len() int { return len(l.ids) }

func (l BoundedIDList) Full() bool { return len(l.ids) >= MaxListEntries }

// IDs 返回副本
func (l BoundedIDList) IDs() []uint64 {
	return append([]uint64{}, l.ids...)
}

func (l BoundedIDList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.IDs())
}

func (l *BoundedIDList) UnmarshalJSON(data []byte) error {
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	nl, err := NewBoundedIDList(ids...)
	if err != nil {
		return err
	}
	*l = nl
	return nil
}
