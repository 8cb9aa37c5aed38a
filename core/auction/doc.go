// Package auction implements the price-based double auction that coordinates
// the devices of a tree-structured energy network.
//
// Every interval the Clearer walks the participant tree depth-first. Each Node
// collects and sums the bids of its children, adds the bid of its own
// BidDispatchContract and hands the subtree curve to its parent. The root
// inverts the aggregate curve at the resolved target to obtain one price per
// commodity, then broadcasts the prices back down where every contract turns
// the price into a plan for its device.
//
// Demand is non-increasing in price across the whole package. A participant
// that cannot produce a valid bid is replaced by a flat zero bid and is not
// dispatched in that interval; the auction itself never aborts because of a
// single participant.
package auction
