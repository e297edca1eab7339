package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StoreInvoiceSignature is the attestation contract entry point.
const StoreInvoiceSignature = "storeInvoice(string,string,string)"

const storeInvoiceABI = `[{
	"type": "function",
	"name": "storeInvoice",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "invoiceNumber", "type": "string"},
		{"name": "fileHash", "type": "string"},
		{"name": "dataHash", "type": "string"}
	],
	"outputs": []
}]`

var contractABI = mustParseABI(storeInvoiceABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return parsed
}

// StoreInvoiceCalldata builds the call data for storeInvoice(recordID, fileFP, dataFP).
func StoreInvoiceCalldata(recordID, fileFingerprint, dataFingerprint string) ([]byte, error) {
	data, err := contractABI.Pack("storeInvoice", recordID, fileFingerprint, dataFingerprint)
	if err != nil {
		return nil, fmt.Errorf("pack storeInvoice: %w", err)
	}
	return data, nil
}

// RevertReason extracts the message of a revert(string) payload.
func RevertReason(data []byte) (string, bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}
