package ir

// ContractVersion is the persona registry contract version recorded on receipts.
const ContractVersion = "0.1.0"
