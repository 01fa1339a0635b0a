// Package tileboard holds project-wide metadata.
package tileboard

// Version is the current tileboard release version.
const Version = "0.3.0"
