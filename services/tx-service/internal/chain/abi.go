package chain

// Minimal ABI fragments for the deployed SoundChain contracts. Only the
// methods the gateway calls are declared; the full artifacts live with
// the contract repo.

const marketplaceABI = `[
	{"type":"function","name":"buyItem","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"listItem","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"tokenPrice","type":"uint256"},{"name":"acceptsNative","type":"bool"},{"name":"acceptsToken","type":"bool"}],"outputs":[]},
	{"type":"function","name":"updateListing","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"tokenPrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelListing","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"listEdition","stateMutability":"nonpayable","inputs":[{"name":"editionId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"tokenPrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelEditionListing","stateMutability":"nonpayable","inputs":[{"name":"editionId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"listBatch","stateMutability":"nonpayable","inputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"price","type":"uint256"},{"name":"tokenPrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelListingBatch","stateMutability":"nonpayable","inputs":[{"name":"tokenIds","type":"uint256[]"}],"outputs":[]}
]`

const auctionABI = `[
	{"type":"function","name":"placeBid","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"tokenAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"reservePrice","type":"uint256"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"payInToken","type":"bool"}],"outputs":[]},
	{"type":"function","name":"updateAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"reservePrice","type":"uint256"},{"name":"endTime","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"resultAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

const editionsABI = `[
	{"type":"function","name":"mintTrack","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"mintToEdition","stateMutability":"payable","inputs":[{"name":"editionId","type":"uint256"},{"name":"to","type":"address"},{"name":"quantity","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createEdition","stateMutability":"nonpayable","inputs":[{"name":"quantity","type":"uint256"},{"name":"uri","type":"string"},{"name":"royaltyBps","type":"uint256"}],"outputs":[{"name":"editionId","type":"uint256"}]},
	{"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}
]`

const tokenABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const merkleDropABI = `[
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"index","type":"uint256"},{"name":"account","type":"address"},{"name":"amount","type":"uint256"},{"name":"merkleProof","type":"bytes32[]"}],"outputs":[]}
]`
