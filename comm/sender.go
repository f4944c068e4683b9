package comm

import (
	"github.com/pkg/errors"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
)

// Structs

// Client is the remote end of the gossip service
// of one replica.
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// Functions

// Dial prepares a client for the replica listening
// at addr. Connections are established lazily on the
// first call, so Dial does not fail for unreachable
// replicas.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "[comm.Dial] preparing connection to %s failed", addr)
	}

	return &Client{
		addr: addr,
		conn: conn,
	}, nil
}

// Addr returns the address this client talks to.
func (c *Client) Addr() string {
	return c.addr
}

// Exchange sends local to the remote replica and
// returns the snapshot the remote replica answers with
// after merging local.
func (c *Client) Exchange(ctx context.Context, local *Snapshot) (*Snapshot, error) {

	reply := new(ExchangeReply)

	err := c.conn.Invoke(ctx, methodExchange, &ExchangeRequest{Snapshot: local}, reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, errors.Wrapf(err, "[comm.Exchange] exchange with %s failed", c.addr)
	}

	if reply.Snapshot == nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "[comm.Exchange] %s replied without snapshot", c.addr)
	}

	return reply.Snapshot, nil
}

// Fetch asks the remote replica for its value.
func (c *Client) Fetch(ctx context.Context) (*FetchReply, error) {

	reply := new(FetchReply)

	err := c.conn.Invoke(ctx, methodFetch, &FetchRequest{}, reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, errors.Wrapf(err, "[comm.Fetch] fetch from %s failed", c.addr)
	}

	return reply, nil
}

// Increment asks the remote replica to increment its
// counter times times and returns its value afterwards.
func (c *Client) Increment(ctx context.Context, times uint32) (int64, error) {

	reply := new(IncrementReply)

	err := c.conn.Invoke(ctx, methodIncrement, &IncrementRequest{Times: times}, reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		return 0, errors.Wrapf(err, "[comm.Increment] increment at %s failed", c.addr)
	}

	return reply.Value, nil
}

// Close tears down the connection to the remote replica.
func (c *Client) Close() error {
	return c.conn.Close()
}
