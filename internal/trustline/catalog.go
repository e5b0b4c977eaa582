package trustline

// Stellar 资产最小单位为 1e-7
const stellarScale = 10_000_000

const (
	usdcTestnet = "GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5"
	eurcTestnet = "GB3Q6QDZYTHWT7E5PVS3W7FUT5GVAFC5KSZFFLPU25GO7VTC3NM2ZTVO"
	usdcMainnet = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	eurcMainnet = "GDHU6WRG4IEQXM5NZ4BMPKOXHW76MZM4Y2IEMFDVXBSDP6SJY4ITNPP2"
)

// catalog 版本控制的静态目录，进程内不可修改
var catalog = []Token{
	{Name: "USDC", Address: usdcTestnet, Scale: stellarScale, Network: Testnet},
	{Name: "EURC", Address: eurcTestnet, Scale: stellarScale, Network: Testnet},
	{Name: "USDC", Address: usdcMainnet, Scale: stellarScale, Network: Mainnet},
	{Name: "EURC", Address: eurcMainnet, Scale: stellarScale, Network: Mainnet},
	// 旧版前端里重复登记的测试网 USDC
	{Name: "USDC", Address: usdcTestnet, Scale: stellarScale, Network: Testnet},
}
