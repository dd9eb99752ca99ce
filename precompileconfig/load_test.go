// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package precompileconfig

import (
	"strings"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Upgrade      Upgrade        `yaml:"upgrade"`
	FeeCollector common.Address `yaml:"feeCollector"`
	Multiplier   uint64         `yaml:"multiplier"`
}

func (c *testConfig) Key() string              { return "testConfig" }
func (c *testConfig) Timestamp() *uint64       { return c.Upgrade.Timestamp() }
func (c *testConfig) IsDisabled() bool         { return c.Upgrade.Disable }
func (c *testConfig) Verify(ChainConfig) error { return nil }
func (c *testConfig) Equal(other Config) bool {
	o, ok := other.(*testConfig)
	return ok && c.Upgrade.Equal(&o.Upgrade) && c.FeeCollector == o.FeeCollector && c.Multiplier == o.Multiplier
}

func testFactory(key string) (Config, bool) {
	if key == "testConfig" {
		return new(testConfig), true
	}
	return nil, false
}

func TestLoad(t *testing.T) {
	doc := `
testConfig:
  upgrade:
    blockTimestamp: 10
  feeCollector: "0x00000000000000000000000000000000000000fe"
  multiplier: 70000
`
	configs, err := Load(strings.NewReader(doc), testFactory)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs["testConfig"].(*testConfig)
	require.Equal(t, uint64(70000), cfg.Multiplier)
	require.Equal(t, common.HexToAddress("0xfe"), cfg.FeeCollector)
	require.Equal(t, uint64(10), *cfg.Timestamp())
	require.False(t, cfg.Upgrade.IsActivated(9))
	require.True(t, cfg.Upgrade.IsActivated(10))
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load(strings.NewReader("bogus: {}\n"), testFactory)
	require.ErrorIs(t, err, ErrUnknownConfigKey)
}

func TestLoadEmpty(t *testing.T) {
	configs, err := Load(strings.NewReader(""), testFactory)
	require.NoError(t, err)
	require.Empty(t, configs)
}

func TestUpgradeEqual(t *testing.T) {
	ts := uint64(5)
	other := uint64(5)
	require.True(t, (&Upgrade{BlockTimestamp: &ts}).Equal(&Upgrade{BlockTimestamp: &other}))
	require.False(t, (&Upgrade{BlockTimestamp: &ts}).Equal(&Upgrade{}))
	require.False(t, (&Upgrade{}).Equal(nil))
	require.True(t, (&Upgrade{}).IsActivated(0))
}
