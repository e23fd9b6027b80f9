package ledger

// votingABI is the application binary interface for the deployed Voting
// contract. The contract keeps, per proposal: the id, the title, a vote
// count, an active flag, and a per-address has-voted map.
const votingABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "id", "type": "uint256"},
			{"internalType": "string", "name": "title", "type": "string"}
		],
		"name": "createProposal",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "proposalId", "type": "uint256"}
		],
		"name": "vote",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "proposalId", "type": "uint256"}
		],
		"name": "getProposal",
		"outputs": [
			{"internalType": "uint256", "name": "id", "type": "uint256"},
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "uint256", "name": "voteCount", "type": "uint256"},
			{"internalType": "bool", "name": "isActive", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "proposalId", "type": "uint256"},
			{"internalType": "address", "name": "voter", "type": "address"}
		],
		"name": "hasVoted",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "proposalId", "type": "uint256"},
			{"internalType": "bool", "name": "isActive", "type": "bool"}
		],
		"name": "setProposalStatus",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
