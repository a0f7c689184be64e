// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package fixedgas collects the gas-schedule constants that are true
// protocol constants rather than per-chain configuration: the EIP-4844
// blob sizing and the intrinsic, access-list, stipend, SSTORE and
// cold/warm access numbers the transaction executor and core/vm share.
package fixedgas

const (
	BlobGasPerBlob    = 1 << 17 // 131072, EIP-4844
	MaxBlobsPerBlock  = 6
	MaxBlobGasPerTx   = BlobGasPerBlob * MaxBlobsPerBlock

	TxGas                 = 21000
	TxGasContractCreation = 53000
	TxDataZeroGas         = 4
	TxDataNonZeroGasEIP2028 = 16
	TxAccessListAddressGas     = 2400
	TxAccessListStorageKeyGas  = 1900

	CallStipend = 2300

	SstoreSentryGasEIP2200  = 2300
	SstoreSetGasEIP2200     = 20000
	SstoreResetGasEIP2200   = 5000
	SstoreClearsScheduleRefundEIP3529 = 4800

	ColdAccountAccessCostEIP2929 = 2600
	WarmStorageReadCostEIP2929   = 100
	ColdSloadCostEIP2929         = 2100
)
