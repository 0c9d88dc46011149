package server

import (
	"context"
	"encoding/json"
	"errors"

	"BasketLedger/internal/core"
	"BasketLedger/internal/ingestion"
	"BasketLedger/internal/query"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "basket.v1.BasketService"

// --- Requests ---

type AddressRequest struct {
	Address string `json:"address"`
}

type HolderRequest struct {
	Basket string `json:"basket"`
	Holder string `json:"holder"`
}

type OrderRequest struct {
	Key string `json:"key"`
}

type ListOrdersRequest struct {
	State   string `json:"state,omitempty"`
	Basket  string `json:"basket,omitempty"`
	Creator string `json:"creator,omitempty"`
}

type JournalRequest struct {
	Account string `json:"account"`
	Limit   int    `json:"limit,omitempty"`
}

type JournalResponse struct {
	Entries []query.JournalEntry `json:"entries"`
}

type Empty struct{}

// BasketServiceServer is the RPC surface: one write method taking the JSON
// command wire form and the read-only queries.
type BasketServiceServer interface {
	Execute(ctx context.Context, cmd *json.RawMessage) (*core.Result, error)
	GetBasket(ctx context.Context, req *AddressRequest) (*query.BasketResponse, error)
	GetHolder(ctx context.Context, req *HolderRequest) (*query.HolderResponse, error)
	GetOrder(ctx context.Context, req *OrderRequest) (*query.OrderResponse, error)
	ListOrders(ctx context.Context, req *ListOrdersRequest) (*query.OrderList, error)
	VerifyIntegrity(ctx context.Context, req *Empty) (*query.IntegrityReport, error)
	JournalHistory(ctx context.Context, req *JournalRequest) (*JournalResponse, error)
	ProjectedBalances(ctx context.Context, req *AddressRequest) (*query.ProjectedBalances, error)
}

func unary[Req any, Resp any](name string, call func(BasketServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BasketServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BasketServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc registers a BasketServiceServer on a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BasketServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Execute", BasketServiceServer.Execute),
		unary("GetBasket", BasketServiceServer.GetBasket),
		unary("GetHolder", BasketServiceServer.GetHolder),
		unary("GetOrder", BasketServiceServer.GetOrder),
		unary("ListOrders", BasketServiceServer.ListOrders),
		unary("VerifyIntegrity", BasketServiceServer.VerifyIntegrity),
		unary("JournalHistory", BasketServiceServer.JournalHistory),
		unary("ProjectedBalances", BasketServiceServer.ProjectedBalances),
	},
	Metadata: "basket/v1/basket.json",
}

// basketService implements BasketServiceServer over the ingestion gateway
// and the query service.
type basketService struct {
	gateway   *ingestion.Gateway
	queries   *query.Service
	transport string
}

// Execute submits one command. Domain rejections are sequenced outcomes and
// return OK with the rejection in the result; only malformed input fails
// the call.
func (s *basketService) Execute(_ context.Context, cmd *json.RawMessage) (*core.Result, error) {
	if cmd == nil || len(*cmd) == 0 {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	res, err := s.gateway.Submit(s.transport, *cmd)
	switch {
	case err != nil && ingestion.IsMalformed(err):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrStopped):
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &res, nil
}

func (s *basketService) GetBasket(_ context.Context, req *AddressRequest) (*query.BasketResponse, error) {
	addr, err := query.ParseAddress(req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.queries.GetBasket(addr)
	return resp, toStatus(err)
}

func (s *basketService) GetHolder(_ context.Context, req *HolderRequest) (*query.HolderResponse, error) {
	basketAddr, err := query.ParseAddress(req.Basket)
	if err != nil {
		return nil, toStatus(err)
	}
	holder, err := query.ParseAddress(req.Holder)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.queries.GetHolder(basketAddr, holder)
	return resp, toStatus(err)
}

func (s *basketService) GetOrder(_ context.Context, req *OrderRequest) (*query.OrderResponse, error) {
	key, err := query.ParseKey(req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.queries.GetOrder(key)
	return resp, toStatus(err)
}

func (s *basketService) ListOrders(_ context.Context, req *ListOrdersRequest) (*query.OrderList, error) {
	f := query.OrderFilter{State: req.State}
	var err error
	if f.Basket, err = optionalAddress(req.Basket); err != nil {
		return nil, toStatus(err)
	}
	if f.Creator, err = optionalAddress(req.Creator); err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.queries.ListOrders(f)
	return resp, toStatus(err)
}

func (s *basketService) VerifyIntegrity(_ context.Context, _ *Empty) (*query.IntegrityReport, error) {
	return s.queries.VerifyIntegrity(), nil
}

func (s *basketService) JournalHistory(ctx context.Context, req *JournalRequest) (*JournalResponse, error) {
	if req.Account == "" {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}
	entries, err := s.queries.JournalHistory(ctx, req.Account, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &JournalResponse{Entries: entries}, nil
}

func (s *basketService) ProjectedBalances(ctx context.Context, req *AddressRequest) (*query.ProjectedBalances, error) {
	owner, err := query.ParseAddress(req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.queries.ProjectedBalances(ctx, owner)
	return resp, toStatus(err)
}

func optionalAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	return query.ParseAddress(s)
}

// toStatus maps query errors onto gRPC codes. Nil stays nil.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, query.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, query.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, query.ErrNoDatabase):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Client calls a remote BasketService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) Execute(ctx context.Context, cmd json.RawMessage) (*core.Result, error) {
	out := new(core.Result)
	if err := c.invoke(ctx, "Execute", &cmd, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBasket(ctx context.Context, address string) (*query.BasketResponse, error) {
	out := new(query.BasketResponse)
	if err := c.invoke(ctx, "GetBasket", &AddressRequest{Address: address}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHolder(ctx context.Context, basket, holder string) (*query.HolderResponse, error) {
	out := new(query.HolderResponse)
	if err := c.invoke(ctx, "GetHolder", &HolderRequest{Basket: basket, Holder: holder}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, key string) (*query.OrderResponse, error) {
	out := new(query.OrderResponse)
	if err := c.invoke(ctx, "GetOrder", &OrderRequest{Key: key}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListOrders(ctx context.Context, req ListOrdersRequest) (*query.OrderList, error) {
	out := new(query.OrderList)
	if err := c.invoke(ctx, "ListOrders", &req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error) {
	out := new(query.IntegrityReport)
	if err := c.invoke(ctx, "VerifyIntegrity", &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) JournalHistory(ctx context.Context, account string, limit int) (*JournalResponse, error) {
	out := new(JournalResponse)
	if err := c.invoke(ctx, "JournalHistory", &JournalRequest{Account: account, Limit: limit}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProjectedBalances(ctx context.Context, owner string) (*query.ProjectedBalances, error) {
	out := new(query.ProjectedBalances)
	if err := c.invoke(ctx, "ProjectedBalances", &AddressRequest{Address: owner}, out); err != nil {
		return nil, err
	}
	return out, nil
}
