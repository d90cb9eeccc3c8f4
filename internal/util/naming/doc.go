// Package naming provides consistent names for the stacks the reconciler
// deploys.
//
// Stack names follow the pattern {prefix}Stack[-{kind}-{region}]-{run}. The
// run suffix is generated once per process run so repeated runs never
// collide with stacks left behind by an earlier, possibly still rolling
// back, attempt.
package naming
