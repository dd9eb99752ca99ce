// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/luxfi/exchangeproxy/events"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-ID"

type server struct {
	d       *migration.Deployment
	decoder *events.Decoder
	gather  prometheus.Gatherer
	dev     bool
	log     log.Logger
}

type callRequest struct {
	From     common.Address  `json:"from" binding:"required"`
	To       *common.Address `json:"to"`
	Data     hexutil.Bytes   `json:"data"`
	Value    *hexutil.Big    `json:"value"`
	GasLimit hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
}

type receiptResponse struct {
	TxHash      common.Hash     `json:"txHash"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	Status      hexutil.Uint64  `json:"status"`
	ReturnData  hexutil.Bytes   `json:"returnData,omitempty"`
	RevertData  hexutil.Bytes   `json:"revertData,omitempty"`
	GasUsed     hexutil.Uint64  `json:"gasUsed"`
	Error       string          `json:"error,omitempty"`
	Events      []events.Record `json:"events"`
}

type fundRequest struct {
	Address common.Address  `json:"address" binding:"required"`
	Token   *common.Address `json:"token"`
	Amount  *hexutil.Big    `json:"amount" binding:"required"`
}

type advanceRequest struct {
	Seconds uint64 `json:"seconds" binding:"required"`
}

type featureResponse struct {
	Key     string         `json:"key"`
	Name    string         `json:"name"`
	Version *hexutil.Big   `json:"version"`
	Address common.Address `json:"address"`
}

func newServer(d *migration.Deployment, gather prometheus.Gatherer, dev bool, logger log.Logger) *server {
	return &server{d: d, decoder: events.DefaultDecoder(), gather: gather, dev: dev, log: logger}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	v1 := r.Group("/v1")
	v1.POST("/call", s.handleCall(true))
	v1.POST("/simulate", s.handleCall(false))
	v1.GET("/contracts", s.handleContracts)
	v1.GET("/features", s.handleFeatures)
	if s.dev {
		dev := v1.Group("/dev")
		dev.POST("/fund", s.handleFund)
		dev.POST("/advance", s.handleAdvance)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func (s *server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"id", c.GetString("requestID"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *server) handleCall(commit bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req callRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		msg := &host.Message{
			From:     req.From,
			To:       s.d.Proxy,
			Data:     req.Data,
			GasLimit: uint64(req.GasLimit),
		}
		if req.To != nil {
			msg.To = *req.To
		}
		if req.Value != nil {
			value, overflow := uint256.FromBig((*big.Int)(req.Value))
			if overflow {
				c.JSON(http.StatusBadRequest, gin.H{"error": "value overflows uint256"})
				return
			}
			msg.Value = value
		}
		if req.GasPrice != nil {
			msg.GasPrice = (*big.Int)(req.GasPrice)
		}

		var receipt *host.Receipt
		if commit {
			receipt = s.d.Host.ApplyMessage(msg)
		} else {
			receipt = s.d.Host.Simulate(msg)
		}
		c.JSON(http.StatusOK, s.toResponse(receipt))
	}
}

func (s *server) toResponse(r *host.Receipt) receiptResponse {
	resp := receiptResponse{
		TxHash:      r.TxHash,
		BlockNumber: (*hexutil.Big)(r.BlockNumber),
		Status:      hexutil.Uint64(r.Status),
		ReturnData:  r.ReturnData,
		RevertData:  r.RevertData,
		GasUsed:     hexutil.Uint64(r.GasUsed),
		Events:      []events.Record{},
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	records, err := s.decoder.DecodeAll(r.Logs)
	if err != nil {
		s.log.Warn("failed to decode logs", "tx", r.TxHash, "err", err)
		return resp
	}
	resp.Events = records
	return resp
}

func (s *server) handleContracts(c *gin.Context) {
	transformers := make(map[string]gin.H, len(s.d.Transformers))
	for name, tr := range s.d.Transformers {
		transformers[name] = gin.H{"address": tr.Address, "deploymentNonce": tr.Nonce}
	}
	c.JSON(http.StatusOK, gin.H{
		"chainId":             (*hexutil.Big)(s.d.Host.ChainID()),
		"proxy":               s.d.Proxy,
		"owner":               s.d.Owner,
		"weth":                s.d.WETH,
		"pool":                s.d.DEX,
		"transformerDeployer": s.d.TransformerDeployer,
		"transformWallet":     s.d.TransformWallet,
		"transformers":        transformers,
	})
}

func (s *server) handleFeatures(c *gin.Context) {
	out := []featureResponse{}
	for _, m := range modules.RegisteredModules() {
		sels := m.Contract.Selectors()
		if len(sels) == 0 || s.implementation(sels[0]) != m.Address {
			continue
		}
		out = append(out, featureResponse{
			Key:     m.ConfigKey,
			Name:    m.Contract.FeatureName(),
			Version: (*hexutil.Big)(m.Contract.FeatureVersion()),
			Address: m.Address,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	c.JSON(http.StatusOK, out)
}

// implementation reads the proxy routing table under the host lock.
func (s *server) implementation(sel [4]byte) common.Address {
	input, err := proxy.ABI.Pack("getFunctionImplementation", sel)
	if err != nil {
		return common.Address{}
	}
	r := s.d.Host.Simulate(&host.Message{From: s.d.Owner, To: s.d.Proxy, Data: input})
	if !r.Succeeded() {
		return common.Address{}
	}
	out, err := proxy.ABI.UnpackOutput("getFunctionImplementation", r.ReturnData)
	if err != nil || len(out) == 0 {
		return common.Address{}
	}
	addr, _ := out[0].(common.Address)
	return addr
}

func (s *server) handleFund(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var err error
	if req.Token == nil {
		err = s.d.Fund(req.Address, (*big.Int)(req.Amount))
	} else {
		err = s.d.Mint(*req.Token, req.Address, (*big.Int)(req.Amount))
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) handleAdvance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.d.Host.AdvanceBlock(req.Seconds)
	block := s.d.Host.Block()
	c.JSON(http.StatusOK, gin.H{
		"number":    (*hexutil.Big)(block.Number()),
		"timestamp": hexutil.Uint64(block.Timestamp()),
	})
}
