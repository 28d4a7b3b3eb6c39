package contract

// Method names on the SwordCollection contract.
const (
	MethodGetSwordCount  = "getSwordCount"
	MethodIncrementSword = "incrementSword"
	MethodNumber         = "number"
	MethodIncrement      = "increment"
)

// SwordCollectionABI describes the deployed SwordCollection contract.
const SwordCollectionABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "color", "type": "uint256"}],
		"name": "getSwordCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "color", "type": "uint256"}],
		"name": "incrementSword",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "number",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "increment",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
