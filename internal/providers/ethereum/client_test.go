package ethereum_test

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/mocks"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
)

const (
	testContract = "0xAAAAAAAA00000001000000000000000000000000"
	testOwnerA   = "0x1111111111111111111111111111111111111111"
	testOwnerB   = "0x2222222222222222222222222222222222222222"

	testMulticallOutputsJSON = `[{"inputs":[],"name":"aggregate3","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"type":"function"}]`
	testOwnerOfOutputsJSON   = `[{"inputs":[],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"type":"function"}]`
	testBalancesOutputsJSON  = `[{"inputs":[],"name":"balanceOfBatch","outputs":[{"name":"","type":"uint256[]"}],"type":"function"}]`
)

type testResult struct {
	Success    bool
	ReturnData []byte
}

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type testClientMocks struct {
	ctrl      *gomock.Controller
	ethClient *mocks.MockEthClient
	limiter   *mocks.MockRateLimiter
	clock     *mocks.MockClock
	client    ethereum.ChainClient
}

func setupTestClient(t *testing.T) *testClientMocks {
	ctrl := gomock.NewController(t)

	tm := &testClientMocks{
		ctrl:      ctrl,
		ethClient: mocks.NewMockEthClient(ctrl),
		limiter:   mocks.NewMockRateLimiter(ctrl),
		clock:     mocks.NewMockClock(ctrl),
	}
	tm.limiter.EXPECT().Wait(gomock.Any()).Return(nil).AnyTimes()

	client, err := ethereum.NewClient(ethereum.Config{
		ResubscribeInitialInterval: time.Millisecond,
		ResubscribeMaxInterval:     5 * time.Millisecond,
		PollInterval:               time.Second,
	}, tm.ethClient, tm.limiter, tm.clock)
	require.NoError(t, err)
	tm.client = client

	return tm
}

func tearDownTestClient(tm *testClientMocks) {
	tm.ctrl.Finish()
}

func mustABI(t *testing.T, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	require.NoError(t, err)
	return parsed
}

func packOutputs(t *testing.T, definition, method string, values ...interface{}) []byte {
	data, err := mustABI(t, definition).Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return data
}

func TestNewClient_InvalidMulticallAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := ethereum.NewClient(ethereum.Config{MulticallAddress: "not-an-address"}, mocks.NewMockEthClient(ctrl), nil, mocks.NewMockClock(ctrl))
	assert.Error(t, err)
}

func TestGetChainHead(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	tm.ethClient.EXPECT().BlockNumber(gomock.Any()).Return(uint64(1234), nil)

	head, err := tm.client.GetChainHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), head)
}

func TestGetFinalizedHead(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	tm.ethClient.EXPECT().
		HeaderByNumber(gomock.Any(), big.NewInt(int64(rpc.FinalizedBlockNumber))).
		Return(&types.Header{Number: big.NewInt(1200)}, nil)

	head, err := tm.client.GetFinalizedHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), head)
}

func TestBatchCall_OwnerOfWithFailedEntry(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	var calls []ethereum.Call
	for _, id := range []int64{8, 9} {
		call, err := ethereum.OwnerOfCall(testContract, big.NewInt(id))
		require.NoError(t, err)
		calls = append(calls, call)
	}

	ownerData := packOutputs(t, testOwnerOfOutputsJSON, "ownerOf", common.HexToAddress(testOwnerA))
	returnData := packOutputs(t, testMulticallOutputsJSON, "aggregate3", []testResult{
		{Success: true, ReturnData: ownerData},
		{Success: false, ReturnData: []byte{}},
	})

	multicall := common.HexToAddress(domain.DEFAULT_MULTICALL3_ADDRESS)
	tm.ethClient.EXPECT().
		CallContract(gomock.Any(), gomock.Any(), nil).
		DoAndReturn(func(_ context.Context, msg geth.CallMsg, _ *big.Int) ([]byte, error) {
			require.NotNil(t, msg.To)
			assert.Equal(t, multicall, *msg.To)
			assert.NotEmpty(t, msg.Data)
			return returnData, nil
		})

	results, err := tm.client.BatchCall(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 2)

	owner, ok := ethereum.DecodeOwnerOf(results[0])
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress(testOwnerA).Hex(), owner)

	_, ok = ethereum.DecodeOwnerOf(results[1])
	assert.False(t, ok)
}

func TestBatchCall_BalanceOfBatch(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	call, err := ethereum.BalanceOfBatchCall(testContract, testOwnerA, []*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)

	balances := packOutputs(t, testBalancesOutputsJSON, "balanceOfBatch", []*big.Int{big.NewInt(0), big.NewInt(7)})
	returnData := packOutputs(t, testMulticallOutputsJSON, "aggregate3", []testResult{
		{Success: true, ReturnData: balances},
	})
	tm.ethClient.EXPECT().CallContract(gomock.Any(), gomock.Any(), nil).Return(returnData, nil)

	results, err := tm.client.BatchCall(context.Background(), []ethereum.Call{call})
	require.NoError(t, err)
	require.Len(t, results, 1)

	decoded, ok := ethereum.DecodeBalanceOfBatch(results[0], 2)
	require.True(t, ok)
	assert.Equal(t, "0", decoded[0].String())
	assert.Equal(t, "7", decoded[1].String())

	_, ok = ethereum.DecodeBalanceOfBatch(results[0], 3)
	assert.False(t, ok, "length mismatch is not a usable read")
}

func TestBatchCall_TransportError(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	call, err := ethereum.OwnerOfCall(testContract, big.NewInt(1))
	require.NoError(t, err)

	tm.ethClient.EXPECT().CallContract(gomock.Any(), gomock.Any(), nil).Return(nil, errors.New("connection reset"))

	_, err = tm.client.BatchCall(context.Background(), []ethereum.Call{call})
	assert.Error(t, err)
}

func TestBatchCall_Empty(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	results, err := tm.client.BatchCall(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func addressTopic(address string) common.Hash {
	return common.BytesToHash(common.HexToAddress(address).Bytes())
}

func TestFetchBlock(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	transfer := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	transferSingle := crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	transferBatch := crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))

	uint256Array, err := abi.NewType("uint256[]", "", nil)
	require.NoError(t, err)
	batchData, err := abi.Arguments{{Type: uint256Array}, {Type: uint256Array}}.
		Pack([]*big.Int{big.NewInt(1), big.NewInt(2)}, []*big.Int{big.NewInt(3), big.NewInt(4)})
	require.NoError(t, err)

	singleData := append(common.LeftPadBytes(big.NewInt(5).Bytes(), 32), common.LeftPadBytes(big.NewInt(6).Bytes(), 32)...)

	txA := common.HexToHash("0xaa")
	txB := common.HexToHash("0xbb")
	contract := common.HexToAddress(testContract)
	zero := common.Hash{}

	logs := []types.Log{
		{
			// ERC1155 batch in the later transaction
			Address: contract, TxHash: txB, TxIndex: 3, Index: 7,
			Topics: []common.Hash{transferBatch, addressTopic(testOwnerA), addressTopic(testOwnerA), addressTopic(testOwnerB)},
			Data:   batchData,
		},
		{
			// ERC721 mint
			Address: contract, TxHash: txA, TxIndex: 1, Index: 2,
			Topics: []common.Hash{transfer, zero, addressTopic(testOwnerA), common.BigToHash(big.NewInt(42))},
		},
		{
			// ERC20 transfer, skipped
			Address: contract, TxHash: txA, TxIndex: 1, Index: 3,
			Topics: []common.Hash{transfer, addressTopic(testOwnerA), addressTopic(testOwnerB)},
			Data:   common.LeftPadBytes(big.NewInt(100).Bytes(), 32),
		},
		{
			Address: contract, TxHash: txA, TxIndex: 1, Index: 1,
			Topics: []common.Hash{transferSingle, addressTopic(testOwnerA), addressTopic(testOwnerA), addressTopic(testOwnerB)},
			Data:   singleData,
		},
		{
			// Removed by a reorg
			Address: contract, TxHash: common.HexToHash("0xcc"), TxIndex: 0, Index: 0, Removed: true,
			Topics: []common.Hash{transfer, zero, addressTopic(testOwnerA), common.BigToHash(big.NewInt(1))},
		},
	}

	header := &types.Header{Number: big.NewInt(100), Time: 1700000000, Difficulty: big.NewInt(0)}
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(100)).Return(header, nil)
	tm.ethClient.EXPECT().
		FilterLogs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q geth.FilterQuery) ([]types.Log, error) {
			assert.Equal(t, big.NewInt(100), q.FromBlock)
			assert.Equal(t, big.NewInt(100), q.ToBlock)
			return logs, nil
		})

	blk, txs, err := tm.client.FetchBlock(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), blk.Number)
	assert.NotEmpty(t, blk.Hash)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), blk.Timestamp)

	require.Len(t, txs, 2)
	assert.Equal(t, txA.Hex(), txs[0].Hash)
	assert.Equal(t, uint64(1), txs[0].TransactionIndex)
	require.Len(t, txs[0].Events, 2)

	single := txs[0].Events[0]
	assert.Equal(t, "ERC1155TransferSingle", single.ParserKey())
	assert.Equal(t, "5", single.TokenID)
	assert.Equal(t, "6", single.Value)
	assert.Equal(t, common.HexToAddress(testOwnerB).Hex(), single.To)

	mint := txs[0].Events[1]
	assert.Equal(t, "ERC721Transfer", mint.ParserKey())
	assert.Equal(t, domain.ETHEREUM_ZERO_ADDRESS, mint.From)
	assert.Equal(t, "42", mint.TokenID)

	batch := txs[1].Events[0]
	assert.Equal(t, "ERC1155TransferBatch", batch.ParserKey())
	assert.Equal(t, []string{"1", "2"}, batch.IDs)
	assert.Equal(t, []string{"3", "4"}, batch.Values)
	assert.Equal(t, uint64(100), txs[1].BlockNumber)
}

func TestFetchBlock_MalformedLog(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	transferSingle := crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).Return(&types.Header{Number: big.NewInt(5), Difficulty: big.NewInt(0)}, nil)
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).Return([]types.Log{{
		Topics: []common.Hash{transferSingle, {}, {}, {}},
		Data:   []byte{0x01},
	}}, nil)

	_, _, err := tm.client.FetchBlock(context.Background(), 5)
	assert.Error(t, err)
}

func newTestSubscription() geth.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

func TestSubscribeNewBlocks_ResubscribesAfterFailure(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		tm.ethClient.EXPECT().SubscribeNewHead(gomock.Any(), gomock.Any()).Return(nil, errors.New("dial tcp: connection refused")),
		tm.ethClient.EXPECT().
			SubscribeNewHead(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ch chan<- *types.Header) (geth.Subscription, error) {
				go func() {
					ch <- &types.Header{Number: big.NewInt(10)}
					ch <- &types.Header{Number: big.NewInt(11)}
				}()
				return newTestSubscription(), nil
			}),
	)

	var (
		mu   sync.Mutex
		seen []uint64
	)
	err := tm.client.SubscribeNewBlocks(ctx, func(_ context.Context, n uint64) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, n)
		if len(seen) == 2 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11}, seen)
}

func TestSubscribeNewBlocks_PollsWithoutSubscriptionSupport(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 3)
	for range 3 {
		ticks <- time.Now()
	}
	ticker := mocks.NewMockTicker(tm.ctrl)
	ticker.EXPECT().C().Return((<-chan time.Time)(ticks)).AnyTimes()
	ticker.EXPECT().Stop()

	tm.ethClient.EXPECT().SubscribeNewHead(gomock.Any(), gomock.Any()).Return(nil, rpc.ErrNotificationsUnsupported)
	tm.clock.EXPECT().NewTicker(time.Second).Return(ticker)
	gomock.InOrder(
		tm.ethClient.EXPECT().BlockNumber(gomock.Any()).Return(uint64(5), nil),
		tm.ethClient.EXPECT().BlockNumber(gomock.Any()).Return(uint64(5), nil),
		tm.ethClient.EXPECT().BlockNumber(gomock.Any()).Return(uint64(7), nil),
	)

	var seen []uint64
	err := tm.client.SubscribeNewBlocks(ctx, func(_ context.Context, n uint64) error {
		seen = append(seen, n)
		if n == 7 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 7}, seen)
}

func TestBlockFetcher(t *testing.T) {
	tm := setupTestClient(t)
	defer tearDownTestClient(tm)

	fetcher := ethereum.NewBlockFetcher(tm.client)

	tm.ethClient.EXPECT().BlockNumber(gomock.Any()).Return(uint64(50), nil)
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).Return(&types.Header{Number: big.NewInt(45)}, nil)

	latest, err := fetcher.FetchLatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), latest)

	finalized, err := fetcher.FetchFinalizedBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(45), finalized)
}
