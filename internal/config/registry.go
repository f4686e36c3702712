package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/coldbell/lp-pricer/internal/amm"
)

var ErrInvalidRegistry = errors.New("invalid registry")

type Asset struct {
	Symbol   string
	Mint     solana.PublicKey
	Decimals uint8
	// PivotMarket names the market quoting this asset in the reference asset.
	PivotMarket string
}

type Market struct {
	Name    string
	Address solana.PublicKey
	Base    string
	Quote   string
}

type Pool struct {
	Name       string
	AmmID      solana.PublicKey
	OpenOrders solana.PublicKey
	LPMint     solana.PublicKey
	Market     string
	Base       string
	Quote      string
	Layout     amm.Version
	StablePair bool
}

// Registry maps symbolic asset, market, and pool names to on-chain
// addresses. It is built once and read concurrently.
type Registry struct {
	Network        string
	SerumProgramID solana.PublicKey
	ReferenceAsset string
	Assets         map[string]Asset
	Markets        map[string]Market
	Pools          map[string]Pool
}

func (r *Registry) Asset(symbol string) (Asset, bool) {
	a, ok := r.Assets[normalizeSymbol(symbol)]
	return a, ok
}

func (r *Registry) Market(name string) (Market, bool) {
	m, ok := r.Markets[normalizeSymbol(name)]
	return m, ok
}

func (r *Registry) Pool(name string) (Pool, bool) {
	p, ok := r.Pools[normalizeSymbol(name)]
	return p, ok
}

func (r *Registry) PoolNames() []string {
	out := make([]string, 0, len(r.Pools))
	for name := range r.Pools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Select returns the named pools in the given order, or every pool when
// names is empty.
func (r *Registry) Select(names []string) ([]Pool, error) {
	if len(names) == 0 {
		names = r.PoolNames()
	}
	out := make([]Pool, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		pool, ok := r.Pool(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown pool %q", ErrInvalidRegistry, name)
		}
		if _, dup := seen[pool.Name]; dup {
			continue
		}
		seen[pool.Name] = struct{}{}
		out = append(out, pool)
	}
	return out, nil
}

func (r *Registry) Validate() error {
	if r.SerumProgramID.IsZero() {
		return fmt.Errorf("%w: serum program id is required", ErrInvalidRegistry)
	}
	if _, ok := r.Assets[r.ReferenceAsset]; !ok {
		return fmt.Errorf("%w: reference asset %q is not a known asset", ErrInvalidRegistry, r.ReferenceAsset)
	}
	for symbol, asset := range r.Assets {
		if asset.Mint.IsZero() {
			return fmt.Errorf("%w: asset %s has no mint", ErrInvalidRegistry, symbol)
		}
		if asset.PivotMarket == "" {
			continue
		}
		market, ok := r.Markets[asset.PivotMarket]
		if !ok {
			return fmt.Errorf("%w: asset %s pivots on unknown market %q", ErrInvalidRegistry, symbol, asset.PivotMarket)
		}
		if market.Base != symbol || market.Quote != r.ReferenceAsset {
			return fmt.Errorf("%w: pivot market %s must quote %s in %s", ErrInvalidRegistry, market.Name, symbol, r.ReferenceAsset)
		}
	}
	for name, market := range r.Markets {
		if market.Address.IsZero() {
			return fmt.Errorf("%w: market %s has no address", ErrInvalidRegistry, name)
		}
		if _, ok := r.Assets[market.Base]; !ok {
			return fmt.Errorf("%w: market %s base %q is not a known asset", ErrInvalidRegistry, name, market.Base)
		}
		if _, ok := r.Assets[market.Quote]; !ok {
			return fmt.Errorf("%w: market %s quote %q is not a known asset", ErrInvalidRegistry, name, market.Quote)
		}
	}
	for name, pool := range r.Pools {
		if pool.AmmID.IsZero() || pool.OpenOrders.IsZero() || pool.LPMint.IsZero() {
			return fmt.Errorf("%w: pool %s needs amm_id, open_orders and lp_mint", ErrInvalidRegistry, name)
		}
		if pool.Layout.Size() == 0 {
			return fmt.Errorf("%w: pool %s has unknown layout %s", ErrInvalidRegistry, name, pool.Layout)
		}
		market, ok := r.Markets[pool.Market]
		if !ok {
			return fmt.Errorf("%w: pool %s references unknown market %q", ErrInvalidRegistry, name, pool.Market)
		}
		if market.Base != pool.Base || market.Quote != pool.Quote {
			return fmt.Errorf("%w: pool %s is %s/%s but market %s is %s/%s", ErrInvalidRegistry, name, pool.Base, pool.Quote, market.Name, market.Base, market.Quote)
		}
	}
	return nil
}

type registryFile struct {
	Network        string `yaml:"network"`
	SerumProgramID string `yaml:"serum_program_id"`
	ReferenceAsset string `yaml:"reference_asset"`
	Assets         []struct {
		Symbol      string `yaml:"symbol"`
		Mint        string `yaml:"mint"`
		Decimals    uint8  `yaml:"decimals"`
		PivotMarket string `yaml:"pivot_market"`
	} `yaml:"assets"`
	Markets []struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		Base    string `yaml:"base"`
		Quote   string `yaml:"quote"`
	} `yaml:"markets"`
	Pools []struct {
		Name       string `yaml:"name"`
		AmmID      string `yaml:"amm_id"`
		OpenOrders string `yaml:"open_orders"`
		LPMint     string `yaml:"lp_mint"`
		Market     string `yaml:"market"`
		Layout     string `yaml:"layout"`
		StablePair bool   `yaml:"stable_pair"`
	} `yaml:"pools"`
}

// LoadRegistry reads a registry YAML file. An empty path yields the built-in
// mainnet registry.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegistry(), nil
	}
	expanded, err := expandHomePath(path)
	if err != nil {
		return nil, fmt.Errorf("expand registry path: %w", err)
	}
	body, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read registry file %q: %w", expanded, err)
	}
	reg, err := ParseRegistry(body)
	if err != nil {
		return nil, fmt.Errorf("registry file %q: %w", expanded, err)
	}
	return reg, nil
}

func ParseRegistry(body []byte) (*Registry, error) {
	var raw registryFile
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	programID, err := parseRegistryKey("serum_program_id", raw.SerumProgramID)
	if err != nil {
		return nil, err
	}
	reg := &Registry{
		Network:        strings.TrimSpace(raw.Network),
		SerumProgramID: programID,
		ReferenceAsset: normalizeSymbol(raw.ReferenceAsset),
		Assets:         make(map[string]Asset, len(raw.Assets)),
		Markets:        make(map[string]Market, len(raw.Markets)),
		Pools:          make(map[string]Pool, len(raw.Pools)),
	}

	for _, item := range raw.Assets {
		symbol := normalizeSymbol(item.Symbol)
		if _, dup := reg.Assets[symbol]; dup || symbol == "" {
			return nil, fmt.Errorf("%w: duplicate or empty asset symbol %q", ErrInvalidRegistry, item.Symbol)
		}
		mint, err := parseRegistryKey("asset "+symbol+" mint", item.Mint)
		if err != nil {
			return nil, err
		}
		reg.Assets[symbol] = Asset{
			Symbol:      symbol,
			Mint:        mint,
			Decimals:    item.Decimals,
			PivotMarket: normalizeSymbol(item.PivotMarket),
		}
	}

	for _, item := range raw.Markets {
		name := normalizeSymbol(item.Name)
		if _, dup := reg.Markets[name]; dup || name == "" {
			return nil, fmt.Errorf("%w: duplicate or empty market name %q", ErrInvalidRegistry, item.Name)
		}
		address, err := parseRegistryKey("market "+name+" address", item.Address)
		if err != nil {
			return nil, err
		}
		reg.Markets[name] = Market{
			Name:    name,
			Address: address,
			Base:    normalizeSymbol(item.Base),
			Quote:   normalizeSymbol(item.Quote),
		}
	}

	for _, item := range raw.Pools {
		name := normalizeSymbol(item.Name)
		if _, dup := reg.Pools[name]; dup || name == "" {
			return nil, fmt.Errorf("%w: duplicate or empty pool name %q", ErrInvalidRegistry, item.Name)
		}
		ammID, err := parseRegistryKey("pool "+name+" amm_id", item.AmmID)
		if err != nil {
			return nil, err
		}
		openOrders, err := parseRegistryKey("pool "+name+" open_orders", item.OpenOrders)
		if err != nil {
			return nil, err
		}
		lpMint, err := parseRegistryKey("pool "+name+" lp_mint", item.LPMint)
		if err != nil {
			return nil, err
		}
		layout, err := amm.ParseVersion(item.Layout)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s: %v", ErrInvalidRegistry, name, err)
		}
		marketName := normalizeSymbol(item.Market)
		if marketName == "" {
			marketName = name
		}
		market := reg.Markets[marketName]
		reg.Pools[name] = Pool{
			Name:       name,
			AmmID:      ammID,
			OpenOrders: openOrders,
			LPMint:     lpMint,
			Market:     marketName,
			Base:       market.Base,
			Quote:      market.Quote,
			Layout:     layout,
			StablePair: item.StablePair,
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseRegistryKey(field, raw string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s %q: %v", ErrInvalidRegistry, field, raw, err)
	}
	return pk, nil
}

func normalizeSymbol(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	return strings.NewReplacer("/", "-", "_", "-").Replace(raw)
}

// DefaultRegistry returns the mainnet assets, serum markets, and pools.
func DefaultRegistry() *Registry {
	key := solana.MustPublicKeyFromBase58
	reg := &Registry{
		Network:        "mainnet-beta",
		SerumProgramID: key("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"),
		ReferenceAsset: "USDC",
		Assets: map[string]Asset{
			"USDC": {Symbol: "USDC", Mint: key("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"), Decimals: 6},
			"USDT": {Symbol: "USDT", Mint: key("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"), Decimals: 6, PivotMarket: "USDT-USDC"},
			"SOL":  {Symbol: "SOL", Mint: key("So11111111111111111111111111111111111111112"), Decimals: 9, PivotMarket: "SOL-USDC"},
			"RAY":  {Symbol: "RAY", Mint: key("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"), Decimals: 6, PivotMarket: "RAY-USDC"},
			"SRM":  {Symbol: "SRM", Mint: key("SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt"), Decimals: 6, PivotMarket: "SRM-USDC"},
		},
		Markets: map[string]Market{
			"RAY-SOL":   {Name: "RAY-SOL", Address: key("C6tp2RVZnxBPFbnAsfTjis8BN9tycESAT4SgDQgbbrsA"), Base: "RAY", Quote: "SOL"},
			"RAY-SRM":   {Name: "RAY-SRM", Address: key("Cm4MmknScg7qbKqytb1mM92xgDxv3TNXos4tKbBqTDy7"), Base: "RAY", Quote: "SRM"},
			"RAY-USDC":  {Name: "RAY-USDC", Address: key("2xiv8A5xrJ7RnGdxXB42uFEkYHJjszEhaJyKKt4WaLep"), Base: "RAY", Quote: "USDC"},
			"RAY-USDT":  {Name: "RAY-USDT", Address: key("teE55QrL4a4QSfydR9dnHF97jgCfptpuigbb53Lo95g"), Base: "RAY", Quote: "USDT"},
			"SOL-USDC":  {Name: "SOL-USDC", Address: key("9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT"), Base: "SOL", Quote: "USDC"},
			"SRM-USDC":  {Name: "SRM-USDC", Address: key("ByRys5tuUWDgL73G8JBAEfkdFf8JWBzPBDHsBVQ5vbQA"), Base: "SRM", Quote: "USDC"},
			"USDT-USDC": {Name: "USDT-USDC", Address: key("77quYg4MGneUdjgXCunt9GgM1usmrxKY31twEy3WHwcS"), Base: "USDT", Quote: "USDC"},
		},
		Pools: map[string]Pool{},
	}

	pools := []struct {
		name, amm, openOrders, lpMint string
		layout                        amm.Version
		stable                        bool
	}{
		{"RAY-SOL", "HeRUVkQyPuJAPFXUkTaJaWzimBopWbJ54q5DCMuPpBY4", "JQEY8R9frhxuvcsewGfgkCVdGWztpHLx4P9zmTAsZFM", "F5PPQHGcznZ2FxD9JaxJMXaf7XkaFFJ6zzTBcW8osQjw", amm.V3, false},
		{"RAY-SRM", "EGhB6FdyHtJPbPMRoBC8eeUVnVh2iRgnQ9HZBKAw46Uy", "6CVRtzecMaPZ1pdfT2ZzJ1qf89yuFsD7MKYGwvjYsy6w", "DSX5E21RE9FB9hM8Nh8xcXQfPK6SzRaJiywemHBSsfup", amm.V3, false},
		{"RAY-USDC", "5NMFfbccSpLdre6anA8P8vVy35n2a52AJiNPpQn8tJnE", "3Xq4vBd5EWs45v9YwG1Mpfr8Xjng23pDovVUbnAaPce9", "BZFGfXMrjG2sS7QT2eiCDEevPFnkYYF7kzJpWfYxPbcx", amm.V3, false},
		{"RAY-USDT", "DVa7Qmb5ct9RCpaU7UTpSaf3GVMYz17vNVU67XpdCRut", "7UF3m8hDGZ6bNnHzaT2YHrhp7A7n9qFfBj6QEpHPv5S8", "C3sT1R3nsw4AVdepvLTLKr5Gvszr7jufyBWUCvy4TUvT", amm.V4, false},
		{"SOL-USDC", "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2", "HRk9CMrpq7Jn9sh7mzxE8CChHG8dneX9p475QKz4Fsfc", "8HoQnePLqPj4M7PUDzfw8e3Ymdwgc7NLGnaTUapubyvu", amm.V4, false},
		{"SRM-USDC", "8tzS7SkUZyHPQY7gLqsMCXZ5EDCgjESUHcB17tiR1h3Z", "GJwrRrNeeQKY2eGzuXGc3KBrBftYbidCYhmA6AZj2Zur", "9XnZd82j34KxNLgQfz29jGbYdxsYznTWRpvZE3SRE7JG", amm.V4, false},
		{"USDT-USDC", "7TbGqz32RsuwXbXY7EyBCiAnMbJq1gm1wKmfjQjuwoyF", "6XXvXS3meWqnftEMUgdY8hDWGJfrb8t22x2k1WyVYwhF", "HqbxvyDnod2zTrhRJ5sSJn4CNnake6M9ksQjHxBcHBZj", amm.V4, true},
	}
	for _, p := range pools {
		market := reg.Markets[p.name]
		reg.Pools[p.name] = Pool{
			Name:       p.name,
			AmmID:      key(p.amm),
			OpenOrders: key(p.openOrders),
			LPMint:     key(p.lpMint),
			Market:     p.name,
			Base:       market.Base,
			Quote:      market.Quote,
			Layout:     p.layout,
			StablePair: p.stable,
		}
	}
	return reg
}
