package mssql

import (
	"context"

	"github.com/ha1tch/godriver-mssql/pkg/tds"
)

// ExecuteBatch sends query as a SQL_BATCH request and returns the
// resulting token stream. Only one exchange may be outstanding on a
// Connection at a time; callers must drain or cancel a prior
// ResultStream before calling this again.
func (c *Connection) ExecuteBatch(ctx context.Context, query string) (*ResultStream, error) {
	headers := tds.AllHeaders{TransactionDescriptor: c.Session().TransactionDescriptor}
	payload := tds.EncodeSQLBatch(headers, query)
	return c.exchange.Do(ctx, tds.PacketSQLBatch, payload)
}

// ExecuteRPC sends call as an RPC_REQUEST and returns the resulting
// token stream.
func (c *Connection) ExecuteRPC(ctx context.Context, call tds.RPCCall) (*ResultStream, error) {
	headers := tds.AllHeaders{TransactionDescriptor: c.Session().TransactionDescriptor}
	payload, err := tds.EncodeRPCRequest(headers, call)
	if err != nil {
		return nil, err
	}
	return c.exchange.Do(ctx, tds.PacketRPCRequest, payload)
}
