// Package common defines the value types exchanged between a federated
// learning server and its clients.
//
// Every proxy implementation, in-process or networked, accepts and returns
// these types. Proxies forward them without inspecting their contents; only
// strategies and clients look inside.
//
// # Parameters and Weights
//
// Parameters is the transport form of a model: a list of serialized tensors
// plus a tensor type naming the encoding. Weights is the decoded form used by
// training code. Convert between them with WeightsToParameters and
// ParametersToWeights:
//
//	params := common.WeightsToParameters(common.Weights{{1.0, 2.0}})
//	weights, err := common.ParametersToWeights(params)
package common
