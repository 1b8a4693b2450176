package grpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// float64 可精确表示的最大整数
const maxSafeInteger = 1<<53 - 1

// reader 从 Struct 读取字段，遇到第一个错误后后续读取均返回零值
type reader struct {
	in  *structpb.Struct
	err error
}

func (r *reader) str(key string) string {
	return r.in.GetFields()[key].GetStringValue()
}

func (r *reader) flag(key string) bool {
	return r.in.GetFields()[key].GetBoolValue()
}

// num 缺失字段返回 0，交由领域校验处理
func (r *reader) num(key string) uint64 {
	v, ok := r.in.GetFields()[key]
	if !ok || r.err != nil {
		return 0
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxSafeInteger {
			r.err = status.Errorf(codes.InvalidArgument, "%s: not an unsigned integer, pass large values as strings", key)
			return 0
		}
		return uint64(f)
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			r.err = status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
			return 0
		}
		return n
	default:
		r.err = status.Errorf(codes.InvalidArgument, "%s: unsupported value", key)
		return 0
	}
}

// toStruct 经 JSON 转为 Struct，整数一律输出为字符串
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(normalize(m).(map[string]any))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

// Uint 解析响应中的整数字段
func Uint(m map[string]any, key string) (uint64, error) {
	switch v := m[key].(type) {
	case string:
		return strconv.ParseUint(v, 10, 64)
	case float64:
		return uint64(v), nil
	case nil:
		return 0, fmt.Errorf("missing field %s", key)
	}
	return 0, fmt.Errorf("field %s is not an integer", key)
}
