package contract

// JaguarPlaceABI はJaguarPlaceマーケットプレイスコントラクトのABI (状態変更関数のみ)
const JaguarPlaceABI = `[
  {
    "inputs": [{"internalType": "address", "name": "_newOwner", "type": "address"}],
    "name": "changeOwner",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_newFee", "type": "uint256"}],
    "name": "changeFee",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_itemId", "type": "uint256"}],
    "name": "markItemAsSold",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_itemId", "type": "uint256"}],
    "name": "markItemAsUnsold",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_user", "type": "address"}],
    "name": "blacklistUser",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_user", "type": "address"}],
    "name": "whitelistUser",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_itemId", "type": "uint256"},
      {"internalType": "uint256", "name": "_priceInEth", "type": "uint256"},
      {"internalType": "uint256", "name": "_priceInToken", "type": "uint256"},
      {"internalType": "string", "name": "_uri", "type": "string"},
      {"internalType": "bool", "name": "_isUnlimited", "type": "bool"},
      {"internalType": "uint256", "name": "_saleEndTime", "type": "uint256"}
    ],
    "name": "createItem",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_itemId", "type": "uint256"}],
    "name": "buyWithEth",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_itemId", "type": "uint256"},
      {"internalType": "uint256", "name": "_tokenAmount", "type": "uint256"}
    ],
    "name": "buyWithToken",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`
