package domain

import (
	"math"
	"regexp"
)

const (
	// MaxProtocolFeeRate 协议费率上限（基点）
	MaxProtocolFeeRate uint64 = 1000
	// DefaultProtocolFeeRate 部署时的默认费率（基点）
	DefaultProtocolFeeRate uint64 = 50
	// FirstOptionID 首个期权 ID
	FirstOptionID uint64 = 1
	// MaxValue 金额、价格、高度的上限，存储层按有符号 64 位落库
	MaxValue uint64 = math.MaxInt64
)

var (
	// 资产标识：<principal>[.<contract-name>]
	assetPattern = regexp.MustCompile(`^[0-9A-Za-z]{1,64}(\.[A-Za-z][A-Za-z0-9_-]{0,63})?$`)
	// 交易对：BASE[-QUOTE]
	symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}(-[A-Z0-9]{1,16})?$`)

	principalPattern = regexp.MustCompile(`^[0-9A-Za-z]{1,64}$`)
)

// ProtocolState 合约级标量：所有者、下一个期权 ID、协议费率
type ProtocolState struct {
	Owner           string `json:"owner"`
	NextOptionID    uint64 `json:"next_option_id"`
	ProtocolFeeRate uint64 `json:"protocol_fee_rate"`
}

// AllocateID 分配期权 ID 并推进计数器
func (s *ProtocolState) AllocateID() uint64 {
	id := s.NextOptionID
	s.NextOptionID++
	return id
}

// SetFeeRate 设置费率，超过上限返回 ErrInvalidFeeRate
func (s *ProtocolState) SetFeeRate(rate uint64) error {
	if rate > MaxProtocolFeeRate {
		return ErrInvalidFeeRate
	}
	s.ProtocolFeeRate = rate
	return nil
}

// Authorize 仅所有者可调用，托管地址永远不能作为调用方
func (s *ProtocolState) Authorize(caller, custody string) error {
	if caller != "" && caller == custody {
		return ErrCustodyCaller
	}
	if caller == "" || caller != s.Owner {
		return ErrOwnerOnly
	}
	return nil
}

// CheckRange 任一值超过 MaxValue 返回 ErrAmountTooLarge
func CheckRange(values ...uint64) error {
	for _, v := range values {
		if v > MaxValue {
			return ErrAmountTooLarge
		}
	}
	return nil
}

// ValidPrincipal 调用方身份格式
func ValidPrincipal(p string) bool {
	return principalPattern.MatchString(p)
}

// WhitelistKind 白名单类型
type WhitelistKind string

const (
	WhitelistAsset  WhitelistKind = "asset"
	WhitelistSymbol WhitelistKind = "symbol"
)

// Whitelist 白名单规则：key 格式校验与关键项保护
type Whitelist struct {
	Kind     WhitelistKind
	critical map[string]struct{}
}

// NewWhitelist 创建白名单规则，critical 中的项可被批准但永不可撤销
func NewWhitelist(kind WhitelistKind, critical []string) *Whitelist {
	set := make(map[string]struct{}, len(critical))
	for _, k := range critical {
		set[k] = struct{}{}
	}
	return &Whitelist{Kind: kind, critical: set}
}

func (w *Whitelist) IsCritical(key string) bool {
	_, ok := w.critical[key]
	return ok
}

// Critical 返回关键项列表
func (w *Whitelist) Critical() []string {
	out := make([]string, 0, len(w.critical))
	for k := range w.critical {
		out = append(out, k)
	}
	return out
}

func (w *Whitelist) invalid() *Error {
	if w.Kind == WhitelistSymbol {
		return ErrInvalidSymbol
	}
	return ErrInvalidAsset
}

// ValidateKey 校验 key：非空、格式正确、不是调用方自身、不是合约托管地址
func (w *Whitelist) ValidateKey(key, caller, custody string) error {
	pattern := assetPattern
	if w.Kind == WhitelistSymbol {
		pattern = symbolPattern
	}
	if key == "" || !pattern.MatchString(key) || key == caller || key == custody {
		return w.invalid()
	}
	return nil
}

// CheckChange 校验一次设置：格式合法，且关键项不可设为 false
func (w *Whitelist) CheckChange(key string, approved bool, caller, custody string) error {
	if err := w.ValidateKey(key, caller, custody); err != nil {
		return err
	}
	if !approved && w.IsCritical(key) {
		return ErrCriticalItem
	}
	return nil
}
