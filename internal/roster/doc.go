// Package roster mirrors who is online into Redis so dashboards and other
// gateway instances can read the live roster without asking the router.
package roster
