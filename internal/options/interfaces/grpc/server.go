// Package grpc 期权合约 gRPC 接口。
// 消息统一为 google.protobuf.Struct，uint64 字段按 protojson 约定以字符串传输，
// 入参同时接受数字与字符串。调用方身份取自 metadata x-principal。
package grpc

import (
	"context"
	"errors"

	"github.com/wyfcoding/optionsvault/internal/options/application"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/custody"
	"github.com/wyfcoding/optionsvault/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 服务全名
const ServiceName = "optionsvault.v1.OptionsVault"

// 方法名
const (
	MethodWriteOption        = "WriteOption"
	MethodBuyOption          = "BuyOption"
	MethodExerciseOption     = "ExerciseOption"
	MethodGetOption          = "GetOption"
	MethodGetUserPosition    = "GetUserPosition"
	MethodGetProtocol        = "GetProtocol"
	MethodSetProtocolFeeRate = "SetProtocolFeeRate"
	MethodUpdatePriceFeed    = "UpdatePriceFeed"
	MethodGetPriceFeed       = "GetPriceFeed"
	MethodSetApprovedAsset   = "SetApprovedAsset"
	MethodSetAllowedSymbol   = "SetAllowedSymbol"
	MethodGetBalance         = "GetBalance"
)

// FullMethod 返回 /service/method 形式的完整方法名
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// OptionsVaultServer 仅用于 ServiceDesc 的类型校验
type OptionsVaultServer interface {
	isOptionsVaultServer()
}

// BalanceReader 结算资产余额查询
type BalanceReader interface {
	Balance(ctx context.Context, asset, owner string) (uint64, error)
}

type Server struct {
	engine   *application.OptionsService
	gov      *application.GovernanceService
	balances BalanceReader
}

func NewServer(engine *application.OptionsService, gov *application.GovernanceService, balances BalanceReader) *Server {
	return &Server{engine: engine, gov: gov, balances: balances}
}

func (*Server) isOptionsVaultServer() {}

// Register 注册到 gRPC server
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&ServiceDesc, s)
}

type unaryFunc func(s *Server, ctx context.Context, in *structpb.Struct) (any, error)

func unary(method string, fn unaryFunc) grpc.MethodDesc {
	call := func(s *Server, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		out, err := fn(s, ctx, in)
		if err != nil {
			return nil, toStatus(err)
		}
		return toStruct(out)
	}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc 手工声明的服务描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OptionsVaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodWriteOption, (*Server).writeOption),
		unary(MethodBuyOption, (*Server).buyOption),
		unary(MethodExerciseOption, (*Server).exerciseOption),
		unary(MethodGetOption, (*Server).getOption),
		unary(MethodGetUserPosition, (*Server).getUserPosition),
		unary(MethodGetProtocol, (*Server).getProtocol),
		unary(MethodSetProtocolFeeRate, (*Server).setProtocolFeeRate),
		unary(MethodUpdatePriceFeed, (*Server).updatePriceFeed),
		unary(MethodGetPriceFeed, (*Server).getPriceFeed),
		unary(MethodSetApprovedAsset, (*Server).setApprovedAsset),
		unary(MethodSetAllowedSymbol, (*Server).setAllowedSymbol),
		unary(MethodGetBalance, (*Server).getBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "optionsvault/v1/options.proto",
}

func (s *Server) writeOption(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	var typ domain.OptionType
	if err := typ.UnmarshalText([]byte(r.str("option_type"))); err != nil {
		return nil, domain.ErrInvalidOptionType
	}
	cmd := application.WriteCommand{
		Asset:            r.str("asset"),
		CollateralAmount: r.num("collateral_amount"),
		StrikePrice:      r.num("strike_price"),
		Premium:          r.num("premium"),
		Expiry:           r.num("expiry"),
		Type:             typ,
	}
	if r.err != nil {
		return nil, r.err
	}
	id, err := s.engine.Write(ctx, caller(ctx), cmd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"option_id": id}, nil
}

func (s *Server) buyOption(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	cmd := application.BuyCommand{Asset: r.str("asset"), OptionID: r.num("option_id")}
	if r.err != nil {
		return nil, r.err
	}
	if err := s.engine.Buy(ctx, caller(ctx), cmd); err != nil {
		return nil, err
	}
	return map[string]any{"option_id": cmd.OptionID}, nil
}

func (s *Server) exerciseOption(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	cmd := application.ExerciseCommand{Asset: r.str("asset"), OptionID: r.num("option_id")}
	if r.err != nil {
		return nil, r.err
	}
	return s.engine.Exercise(ctx, caller(ctx), cmd)
}

func (s *Server) getOption(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	id := r.num("option_id")
	if r.err != nil {
		return nil, r.err
	}
	return s.engine.GetOption(ctx, id)
}

// getUserPosition 不存在时返回 NotFound
func (s *Server) getUserPosition(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	pos, err := s.engine.GetUserPosition(ctx, r.str("user"))
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, status.Error(codes.NotFound, "position not found")
	}
	return pos, nil
}

func (s *Server) getProtocol(ctx context.Context, _ *structpb.Struct) (any, error) {
	owner, err := s.gov.Owner(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := s.gov.GetProtocolFeeRate(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"owner": owner, "protocol_fee_rate": rate}, nil
}

func (s *Server) setProtocolFeeRate(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	rate := r.num("rate")
	if r.err != nil {
		return nil, r.err
	}
	if err := s.gov.SetProtocolFeeRate(ctx, caller(ctx), rate); err != nil {
		return nil, err
	}
	return map[string]any{"protocol_fee_rate": rate}, nil
}

func (s *Server) updatePriceFeed(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	symbol, price, ts := r.str("symbol"), r.num("price"), r.num("timestamp")
	if r.err != nil {
		return nil, r.err
	}
	if err := s.gov.UpdatePriceFeed(ctx, caller(ctx), symbol, price, ts); err != nil {
		return nil, err
	}
	return domain.PriceFeed{Symbol: symbol, Price: price, Timestamp: ts, Source: caller(ctx)}, nil
}

func (s *Server) getPriceFeed(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	return s.gov.GetPriceFeed(ctx, r.str("symbol"))
}

func (s *Server) setApprovedAsset(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	key, approved := r.str("asset"), r.flag("approved")
	if err := s.gov.SetApprovedAsset(ctx, caller(ctx), key, approved); err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "approved": approved}, nil
}

func (s *Server) setAllowedSymbol(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	key, allowed := r.str("symbol"), r.flag("allowed")
	if err := s.gov.SetAllowedSymbol(ctx, caller(ctx), key, allowed); err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "approved": allowed}, nil
}

func (s *Server) getBalance(ctx context.Context, in *structpb.Struct) (any, error) {
	r := reader{in: in}
	asset, owner := r.str("asset"), r.str("owner")
	bal, err := s.balances.Balance(ctx, asset, owner)
	if err != nil {
		return nil, err
	}
	return map[string]any{"asset": asset, "owner": owner, "balance": bal}, nil
}

func caller(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(middleware.PrincipalMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// toStatus 领域错误按大类映射为 gRPC 状态码，消息中保留错误码
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return status.Error(codeOf(de.Kind), de.Error())
	}
	switch {
	case errors.Is(err, application.ErrInvalidPrincipal):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, application.ErrNotDeployed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, custody.ErrAssetNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func codeOf(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindAuthorization:
		return codes.PermissionDenied
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindTransfer:
		return codes.Aborted
	default:
		return codes.FailedPrecondition
	}
}
