package larder

// Version is the larder release version.
const Version = "0.1.0"
